package main

import (
	"crypto"
	"crypto/hmac"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// authCalculate derives basic auth credentials valid until expiry. The user
// name carries the expiry and an optional label, the password is its HMAC.
func authCalculate(authKey string, suffix string, expiry time.Time) (string, string) {
	user := strconv.FormatInt(expiry.Unix(), 10)

	if suffix != "" {
		user += "$" + suffix
	}

	h := hmac.New(crypto.SHA256.New, []byte(authKey))
	h.Write([]byte(user))
	return user, hex.EncodeToString(h.Sum(nil))
}

func authProcess(handler http.HandlerFunc, authKey string, now func() time.Time) http.HandlerFunc {
	if len(authKey) == 0 {
		return handler
	}

	failed := func(rw http.ResponseWriter) {
		rw.Header().Set("WWW-Authenticate", "Basic realm=\"updiserver\"")
		rw.WriteHeader(http.StatusUnauthorized)
	}

	return func(rw http.ResponseWriter, rq *http.Request) {
		user, pwd, ok := rq.BasicAuth()
		if !ok {
			failed(rw)
			return
		}

		pwdDec, err := hex.DecodeString(pwd)
		if err != nil {
			failed(rw)
			return
		}

		h := hmac.New(crypto.SHA256.New, []byte(authKey))
		h.Write([]byte(user))

		if subtle.ConstantTimeCompare(pwdDec, h.Sum(nil)) != 1 {
			failed(rw)
			return
		}

		parts := strings.SplitN(user, "$", 2)

		expiry, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || now().Unix() > expiry {
			failed(rw)
			return
		}

		handler(rw, rq)
	}
}
