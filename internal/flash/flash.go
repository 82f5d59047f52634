// Package flash carries one-shot UI messages across a redirect.
//
// A handler calls Add before redirecting; the next page render calls Pop,
// which returns the messages and expires the cookie so they show once.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// CookieName is the cookie that holds pending messages.
const CookieName = "flash"

// Kind selects how a message is styled.
type Kind string

const (
	Success Kind = "success"
	Info    Kind = "info"
	Error   Kind = "error"
)

// Message is a single flash message.
type Message struct {
	Kind Kind   `json:"k"`
	Text string `json:"t"`
}

// Store writes flash cookies. Secure sets the cookie's Secure attribute and
// should match the session cookie's setting.
type Store struct {
	Secure bool
}

// Add queues a message for the next page the browser loads. Messages already
// pending on the request are kept.
func (s Store) Add(w http.ResponseWriter, r *http.Request, kind Kind, text string) {
	msgs := append(read(r), Message{Kind: kind, Text: text})

	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later Adds in the same request see this one too.
	r.Header.Set("Cookie", replaceCookie(r, CookieName, base64.RawURLEncoding.EncodeToString(data)))
}

// Pop returns the pending messages and clears them.
func (s Store) Pop(w http.ResponseWriter, r *http.Request) []Message {
	msgs := read(r)
	if len(msgs) == 0 {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return msgs
}

// read decodes the request's flash cookie. A missing or mangled cookie
// yields no messages.
func read(r *http.Request) []Message {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

// replaceCookie rebuilds the request's Cookie header with name set to value.
func replaceCookie(r *http.Request, name, value string) string {
	out := (&http.Cookie{Name: name, Value: value}).String()
	for _, c := range r.Cookies() {
		if c.Name == name {
			continue
		}
		out += "; " + (&http.Cookie{Name: c.Name, Value: c.Value}).String()
	}
	return out
}
