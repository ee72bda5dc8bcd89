// Command swclient joins a relay room and prints its traffic. Lines read from
// stdin are sent as document content, one paragraph block per line;
// "/title <text>" renames the document. With -db the room is opened as a
// stored document and edits are autosaved.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nzlov/roomsync/client"
	"github.com/nzlov/roomsync/docs"
	"github.com/nzlov/roomsync/event"
	"github.com/nzlov/roomsync/store"
)

var (
	addr   = flag.String("addr", "localhost:8000", "node address")
	email  = flag.String("email", "", "user email")
	room   = flag.String("room", "", "room id")
	secret = flag.String("secret", "", "admin secret; prints the room snapshot and exits")
	db     = flag.String("db", "", "postgres dsn; edit the room as a stored document")
)

// editor is what stdin lines are applied to.
type editor interface {
	Edit(content string) error
	Rename(title string) error
}

type rawEditor struct {
	c    *client.Client
	room string
}

func (e rawEditor) Edit(content string) error { return e.c.SendContent(e.room, content) }
func (e rawEditor) Rename(title string) error { return e.c.SendTitle(e.room, title) }

func main() {
	flag.Parse()
	log, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *secret != "" {
		rooms, err := client.AdminRooms(ctx, *addr, *secret)
		if err != nil {
			log.Sugar().Fatal("admin rooms:", err)
		}
		out, _ := json.MarshalIndent(rooms, "", "  ")
		fmt.Println(string(out))
		return
	}
	if *email == "" || *room == "" {
		log.Sugar().Fatal("email and room are required")
	}

	c, err := client.Dial(ctx, *addr, *email)
	if err != nil {
		log.Sugar().Fatal(err)
	}
	defer c.Close()

	for _, k := range []event.Kind{
		event.KindRoomUsers, event.KindUserJoined, event.KindUserLeft,
		event.KindContent, event.KindTitle, event.KindCursor,
	} {
		c.On(k, "", func(ev event.Event) {
			data, _ := json.Marshal(ev)
			fmt.Printf("%s %s\n", ev.Kind(), data)
		})
	}
	var ed editor = rawEditor{c: c, room: *room}
	if *db != "" {
		st, err := store.Open(store.Config{DB: *db})
		if err != nil {
			log.Sugar().Fatal("open store:", err)
		}
		defer st.Close()
		sess, err := docs.Open(ctx, *room, st.Docs, c,
			docs.WithLogger(log.Sugar()),
			docs.WithBlobs(st.Covers),
		)
		if err != nil {
			log.Sugar().Fatal("open document:", err)
		}
		defer func() {
			flush, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sess.Close(flush); err != nil {
				log.Sugar().Error("save document:", err)
			}
		}()
		d := sess.Document()
		fmt.Printf("document %s %q\n", d.ID, d.Title)
		ed = sess
	} else if err := c.Join(*room); err != nil {
		log.Sugar().Fatal("join:", err)
	}

	lines := make(chan string)
	go func() {
		s := bufio.NewScanner(os.Stdin)
		for s.Scan() {
			lines <- s.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			log.Sugar().Info("connection closed")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.HasPrefix(line, "/title ") {
				err = ed.Rename(strings.TrimPrefix(line, "/title "))
			} else {
				err = ed.Edit(paragraph(line))
			}
			if err != nil {
				log.Sugar().Error("send:", err)
			}
		}
	}
}

// paragraph wraps a line of text as editor content: a JSON array of blocks.
func paragraph(text string) string {
	data, _ := json.Marshal([]map[string]string{{"type": "paragraph", "content": text}})
	return string(data)
}
