package handlers

import (
	"fmt"
	"strconv"
	"strings"
)

// CallbackKind is an operator button action.
type CallbackKind int

const (
	CallbackUnknown CallbackKind = iota
	CallbackCancelAsk
	CallbackCancelConfirm
	CallbackCancelAbort
	CallbackChangeWebsite
	CallbackTimerShow
	CallbackTimerChange
	CallbackSubscriptionShow
	CallbackSubscriptionToggle
	CallbackFreezeShow
	CallbackFreezeDelete
	CallbackPremiumUsers
)

var callbackNames = map[CallbackKind]string{
	CallbackCancelAsk:          "cancel_sub",
	CallbackCancelConfirm:      "cancel_yes",
	CallbackCancelAbort:        "cancel_no",
	CallbackChangeWebsite:      "change_website",
	CallbackTimerShow:          "setting_auto_timer",
	CallbackTimerChange:        "change_auto_timer",
	CallbackSubscriptionShow:   "setting_subscription",
	CallbackSubscriptionToggle: "toggle_subscription",
	CallbackFreezeShow:         "setting_freeze",
	CallbackFreezeDelete:       "freeze_delete",
	CallbackPremiumUsers:       "premium_users",
}

var callbackKinds = func() map[string]CallbackKind {
	m := make(map[string]CallbackKind, len(callbackNames))
	for k, v := range callbackNames {
		m[v] = k
	}
	return m
}()

func (k CallbackKind) String() string {
	if name, ok := callbackNames[k]; ok {
		return name
	}
	return "unknown"
}

// takesUser reports whether the kind carries a target user id.
func (k CallbackKind) takesUser() bool {
	switch k {
	case CallbackCancelAsk, CallbackCancelConfirm, CallbackCancelAbort:
		return true
	}
	return false
}

// Callback is decoded callback data.
type Callback struct {
	Kind   CallbackKind
	UserID int64
}

// Data encodes c as callback data.
func (c Callback) Data() string {
	if c.Kind.takesUser() {
		return c.Kind.String() + ":" + strconv.FormatInt(c.UserID, 10)
	}
	return c.Kind.String()
}

// ParseCallback decodes callback data produced by Data.
func ParseCallback(data string) (Callback, error) {
	name, arg, hasArg := strings.Cut(data, ":")
	kind, ok := callbackKinds[name]
	if !ok {
		return Callback{}, fmt.Errorf("unknown callback %q", data)
	}
	if kind.takesUser() != hasArg {
		return Callback{}, fmt.Errorf("malformed callback %q", data)
	}
	cb := Callback{Kind: kind}
	if hasArg {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("malformed user id in callback %q: %w", data, err)
		}
		cb.UserID = id
	}
	return cb, nil
}
