package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookieName is the name of the cookie carrying pending flash messages.
const FlashCookieName = "glycoguard_flash"

// Flash categories understood by the templates.
const (
	CategorySuccess = "success"
	CategoryError   = "error"
	CategoryInfo    = "info"
)

// maxFlashes bounds the cookie size when redirects chain without a render.
const maxFlashes = 5

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// AddFlash queues a message for the next page. Messages already queued on r are kept.
// Secure follows the session cookie.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	flashes := append(readFlashes(r), Flash{Category: category, Message: message})
	if len(flashes) > maxFlashes {
		flashes = flashes[len(flashes)-maxFlashes:]
	}

	data, err := json.Marshal(flashes)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlashes returns pending messages and clears the cookie.
func (m *Manager) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if _, err := r.Cookie(FlashCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     FlashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return flashes
}

// readFlashes treats an undecodable cookie as empty.
func readFlashes(r *http.Request) []Flash {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}

	var flashes []Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		return nil
	}

	out := flashes[:0]
	for _, f := range flashes {
		switch f.Category {
		case CategorySuccess, CategoryError, CategoryInfo:
			out = append(out, f)
		}
	}
	return out
}
