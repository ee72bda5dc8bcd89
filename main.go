package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "net/http/pprof"

	"github.com/nzlov/roomsync/registry"
	"github.com/nzlov/roomsync/store"
)

func main() {
	log, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(log)
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("./")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err := viper.ReadInConfig()
	if err != nil {
		log.Sugar().Fatal("init config error:", err)
	}

	err = viper.Unmarshal(&DefConfig)
	if err != nil {
		log.Sugar().Fatal("init config unmarshal error:", err)
	}

	if DefConfig.PprofHost != "" {
		go func() {
			http.ListenAndServe(DefConfig.PprofHost, nil)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node := newNode(registry.New(), DefConfig.Client)
	if cfg, ok := DefConfig.storeConfig(); ok {
		st, err := store.Open(cfg)
		if err != nil {
			log.Sugar().Fatal("open store:", err)
		}
		defer st.Close()
		node.blobs = st.Blobs
	}
	go node.Run(ctx)

	srv := &http.Server{
		Addr:    DefConfig.Host,
		Handler: newRouter(node),
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Sugar().Error("shutdown:", err)
		}
	}()

	log.Sugar().Info("Start:", DefConfig.Host)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Sugar().Fatal("ListenAndServe: ", err)
	}
	log.Sugar().Info("close")
}

func newRouter(node *Node) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", node.serveWs)
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.HandleFunc("/admin/rooms", node.adminRooms).Methods(http.MethodGet)
	r.HandleFunc("/blobs/{path:.*}", node.serveBlob).Methods(http.MethodGet)
	return logRequests(zap.S().With("method", "http"), r)
}

func logRequests(log *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Infow("request", "verb", r.Method, "path", r.URL.Path, "code", m.Code, "duration", m.Duration, "written", m.Written)
	})
}
