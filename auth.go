package main

import (
	"crypto/md5"
	"encoding/hex"
)

// CheckSignMD5 reports whether pk is md5(secret + data + timestamp).
func CheckSignMD5(secret, data, timestamp, pk string) bool {
	h := md5.New()
	h.Write([]byte(secret + data + timestamp))
	return hex.EncodeToString(h.Sum(nil)) == pk
}
