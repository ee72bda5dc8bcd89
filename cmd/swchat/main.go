// Command swchat is a terminal chat client over the durable store. It loads
// the newest page of a chat, follows the change feed when redis is set and
// sends stdin lines through the optimistic pipeline. A trailing @name is
// completed against -members before sending.
//
//	/more              load the next older page
//	/file <path>       upload and send a file
//	/unread            print unread counters
//	/open <chat> [t]   open another chat in a new tab
//	/tab <chat>        switch to an open tab
//	/name <title>      rename the current tab
//	/close             close the current tab
//	/back, /forward    walk the tab history
//	/who <text>        list members matching the trailing @query
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nzlov/roomsync/chat"
	"github.com/nzlov/roomsync/store"
	"github.com/nzlov/roomsync/tabs"
)

var (
	db      = flag.String("db", "", "postgres dsn")
	redis   = flag.String("redis", "", "redis address for the change feed")
	channel = flag.String("channel", "", "change feed channel")
	public  = flag.String("public", "http://localhost:8000", "public url of the node serving blobs")
	user    = flag.String("user", "", "user id")
	chatID  = flag.String("chat", "", "chat id")
	members = flag.String("members", "", "comma separated id:email pairs for @mentions")
)

type session struct {
	log      *zap.SugaredLogger
	cache    *chat.Cache
	unread   *chat.Unread
	pipeline *chat.Pipeline
	nav      *tabs.Navigator
	members  []chat.Member
}

func main() {
	flag.Parse()
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	log := logger.Sugar()

	if *db == "" || *user == "" || *chatID == "" {
		log.Fatal("db, user and chat are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := store.Open(store.Config{
		DB:        *db,
		PublicURL: *public,
		Redis:     store.RedisConfig{Enable: *redis != "", Host: *redis, Channel: *channel},
	})
	if err != nil {
		log.Fatal("open store:", err)
	}
	defer st.Close()

	cache := chat.NewCache(st.Messages, log)
	nav := tabs.NewNavigator(
		tabs.WithClassifier(func(string) tabs.Kind { return tabs.KindDirect }),
		tabs.WithLogger(log),
	)
	unread := chat.NewUnread(*user, st.Messages, cache,
		chat.WithNotifier(chat.LogNotifier{Log: log}, nav),
		chat.WithDirectory(st.Messages, nil),
		chat.WithUnreadLogger(log),
	)
	stopObserving := nav.Observe(unread.SetOpen)
	defer stopObserving()

	s := &session{
		log:      log,
		cache:    cache,
		unread:   unread,
		pipeline: chat.NewPipeline(cache, st.Messages, st.Blobs, log),
		nav:      nav,
		members:  parseMembers(*members),
	}
	s.open(ctx, *chatID, *chatID)
	if err := unread.FetchUnreadCounts(ctx); err != nil {
		log.Warn("unread counts:", err)
	}

	if st.Feed != nil {
		sync := chat.NewSync(st.Feed, cache, unread, log)
		go func() {
			if err := sync.Run(ctx); err != nil {
				log.Error("change feed:", err)
			}
		}()
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			unread.Wait()
			return
		case line, ok := <-lines:
			if !ok {
				unread.Wait()
				return
			}
			s.handle(ctx, line)
		}
	}
}

func parseMembers(v string) []chat.Member {
	var out []chat.Member
	for _, pair := range strings.Split(v, ",") {
		id, email, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if ok && id != "" && email != "" {
			out = append(out, chat.Member{ID: id, Email: email})
		}
	}
	return out
}

// current returns the chat shown in the active tab.
func (s *session) current() (string, bool) {
	tab, ok := s.nav.Active()
	if !ok || tab.ChatID == "" {
		return "", false
	}
	return tab.ChatID, true
}

func (s *session) open(ctx context.Context, id, title string) {
	s.nav.Open(title, id, id)
	s.show(ctx, id)
}

// show loads the chat on first visit, prints it and marks it read.
func (s *session) show(ctx context.Context, id string) {
	if len(s.cache.Messages(id)) == 0 {
		if err := s.cache.LoadPage(ctx, id, 0); err != nil {
			s.log.Error("load messages:", err)
			return
		}
	}
	fmt.Printf("== %s\n", id)
	for _, m := range s.cache.Messages(id) {
		printMessage(m)
	}
	if err := s.unread.MarkRead(ctx, id); err != nil {
		s.log.Warn("mark read:", err)
	}
}

func (s *session) handle(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/open":
		id, title, _ := strings.Cut(arg, " ")
		if title == "" {
			title = id
		}
		s.open(ctx, id, title)
		return
	case "/tab":
		if !s.nav.Activate(arg) {
			fmt.Printf("no open tab %q\n", arg)
			return
		}
		s.show(ctx, arg)
		return
	case "/name":
		if tab, ok := s.nav.Active(); ok {
			s.nav.SetTitle(tab.ID, arg)
		}
		s.printTabs()
		return
	case "/close":
		if tab, ok := s.nav.Active(); ok {
			s.nav.Close(tab.ID)
		}
		s.printTabs()
		return
	case "/back", "/forward":
		move := s.nav.Back
		if cmd == "/forward" {
			move = s.nav.Forward
		}
		if tab, ok := move(); ok {
			s.show(ctx, tab.ChatID)
		}
		if s.nav.CanForward() {
			fmt.Println("(forward available)")
		}
		return
	case "/who":
		for _, m := range chat.MentionCandidates(arg, s.members) {
			fmt.Printf("@%s\t%s\n", m.Name, m.ID)
		}
		return
	case "/unread":
		for id, n := range s.unread.Counts() {
			fmt.Printf("%s\t%d\n", id, n)
		}
		return
	}

	id, ok := s.current()
	if !ok {
		fmt.Println("no chat open; use /open <chat>")
		return
	}
	switch cmd {
	case "/more":
		before := len(s.cache.Messages(id))
		if err := s.cache.NextPage(ctx, id); err != nil {
			s.log.Error("load page:", err)
			return
		}
		msgs := s.cache.Messages(id)
		for _, m := range msgs[:len(msgs)-before] {
			printMessage(m)
		}
	case "/file":
		f, err := os.Open(arg)
		if err != nil {
			s.log.Error("open file:", err)
			return
		}
		defer f.Close()
		_, done := s.pipeline.SendFiles(ctx, id, *user, "", []chat.File{{
			Name:        filepath.Base(arg),
			ContentType: mime.TypeByExtension(filepath.Ext(arg)),
			Preview:     "file://" + arg,
			Body:        f,
		}}, "")
		<-done
		s.printLast(id)
	default:
		text := line
		if c := chat.MentionCandidates(text, s.members); len(c) == 1 {
			text = strings.TrimSpace(chat.CompleteMention(text, c[0].Name))
		}
		_, done := s.pipeline.SendText(ctx, id, *user, text, "")
		<-done
		s.printLast(id)
		if err := s.unread.MarkRead(ctx, id); err != nil {
			s.log.Warn("mark read:", err)
		}
	}
}

func (s *session) printTabs() {
	active, _ := s.nav.Active()
	for _, t := range s.nav.Tabs() {
		mark := " "
		if t.ID == active.ID {
			mark = "*"
		}
		fmt.Printf("%s %s\t%s\t%d unread\n", mark, t.ID, t.Title, s.unread.Count(t.ChatID))
	}
}

func (s *session) printLast(id string) {
	if m, ok := s.cache.Last(id); ok {
		printMessage(m)
	}
}

func printMessage(m chat.Message) {
	body := m.Text
	if m.File != nil {
		body = strings.TrimSpace(body + " " + m.File.URL)
	}
	status := ""
	if m.Status != chat.StatusNone {
		status = " [" + string(m.Status) + "]"
	}
	fmt.Printf("%s %s: %s%s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, body, status)
}
