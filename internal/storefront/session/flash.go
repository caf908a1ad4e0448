package session

import (
	"encoding/json"
	"time"
)

const flashTTL = 5 * time.Minute

// FlashKind selects how a notification is presented.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// Flash is a one-shot notification carried across a redirect.
type Flash struct {
	Kind    FlashKind `json:"k"`
	Message string    `json:"m"`
}

// PushFlash stores a notification to be shown on the next rendered page.
func PushFlash(store Store, name string, flash Flash) {
	if store == nil || flash.Message == "" {
		return
	}
	raw, err := json.Marshal(flash)
	if err != nil {
		return
	}
	store.Set(name, string(raw), flashTTL)
}

// PopFlash returns and clears the pending notification.
func PopFlash(store Store, name string) (Flash, bool) {
	if store == nil {
		return Flash{}, false
	}
	raw, ok := store.Get(name)
	if !ok {
		return Flash{}, false
	}
	store.Clear(name)
	var flash Flash
	if err := json.Unmarshal([]byte(raw), &flash); err != nil || flash.Message == "" {
		return Flash{}, false
	}
	return flash, true
}
