package client

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nzlov/roomsync/registry"
)

// CodeOK is the admin response code for success.
const CodeOK = "0"

type Result struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func MD5(s string) string {
	m := md5.New()
	m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// AdminRooms fetches the node's room snapshot. addr is the node's http
// address ("host:port" or a full http URL).
func AdminRooms(ctx context.Context, addr, secret string) ([]registry.Room, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/admin/rooms")
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("sign", MD5(secret+ts))
	params.Set("ts", ts)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	result := Result{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("admin rooms: %w", err)
	}
	if result.Code != CodeOK {
		var msg string
		json.Unmarshal(result.Data, &msg)
		return nil, fmt.Errorf("admin rooms: code %s: %s", result.Code, msg)
	}
	rooms := []registry.Room{}
	if err := json.Unmarshal(result.Data, &rooms); err != nil {
		return nil, fmt.Errorf("admin rooms: %w", err)
	}
	return rooms, nil
}
