package channels

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// RecipientJID turns the bare identifier used on the HTTP API into a user
// JID. Identifiers that already carry a server part are parsed as-is.
func RecipientJID(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.JID{}, fmt.Errorf("recipient is required")
	}
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid recipient %q: %w", to, err)
		}
		return jid, nil
	}
	return types.NewJID(strings.TrimPrefix(to, "+"), types.DefaultUserServer), nil
}

// bareSender strips the user server suffix. Group and other JIDs keep their
// full form.
func bareSender(jid types.JID) string {
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		return jid.User
	}
	return jid.String()
}
