package model

import "strings"

// ExtensionOf extracts the extension from a channel name. The unique
// suffix after the last '-' is dropped, then the technology prefix up to
// the first '/': "SIP/614-00000070" gives "614" and
// "SIP/Eutelia-07211835565-00000045" gives "Eutelia-07211835565".
// A name without a technology prefix is returned with only its suffix
// removed.
func ExtensionOf(channel string) string {
	s := channel
	if i := strings.LastIndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// MemberID extracts the extension of a queue member interface:
// "Local/214@from-queue/n" and "SIP/214" both give "214".
func MemberID(iface string) string {
	s := iface
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return s
}
