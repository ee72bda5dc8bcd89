package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nzlov/roomsync/store"
)

func adminresp(log *zap.SugaredLogger, w http.ResponseWriter, code string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(AdminResult{Code: code, Data: data}); err != nil {
		log.Error("[ADMINRESP] encode:", err)
		return
	}
	log.Info("[ADMINRESP]", code)
}

// adminRooms serves the registry snapshot. The request is signed with
// md5(adminsecret + ts).
func (n *Node) adminRooms(w http.ResponseWriter, r *http.Request) {
	log := zap.S().With("method", "adminrooms")

	s := r.URL.Query().Get("sign")
	if s == "" {
		adminresp(log, w, C_FAIL, "sign")
		return
	}
	ts := r.URL.Query().Get("ts")
	if ts == "" {
		adminresp(log, w, C_FAIL, "ts")
		return
	}
	if !CheckSignMD5(DefConfig.AdminSecret, "", ts, s) {
		adminresp(log, w, C_AUTH, "sign")
		return
	}

	rooms, err := n.Snapshot(r.Context())
	if err != nil {
		adminresp(log, w, C_FAIL, err.Error())
		return
	}
	adminresp(log, w, C_OK, rooms)
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Health{Status: "UP", Timestamp: time.Now()})
}

// serveBlob is the public URL target of the blob store.
func (n *Node) serveBlob(w http.ResponseWriter, r *http.Request) {
	log := zap.S().With("method", "blob")
	if n.blobs == nil {
		http.NotFound(w, r)
		return
	}
	p := mux.Vars(r)["path"]
	blob, err := n.blobs.Get(r.Context(), p)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error("get blob:", p, err)
		http.Error(w, "blob unavailable", http.StatusInternalServerError)
		return
	}
	if blob.ContentType != "" {
		w.Header().Set("Content-Type", blob.ContentType)
	}
	w.Write(blob.Data)
}
