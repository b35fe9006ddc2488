package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/haasonsaas/echodesk/internal/chat"
)

// contactIDSelf is the chat core's id for the local user.
const contactIDSelf = 1

// Backend adapts a Client to chat.Backend.
type Backend struct {
	client *Client
}

// NewBackend wraps an RPC client.
func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

var _ chat.Backend = (*Backend)(nil)

type chatListItem struct {
	Kind             string `json:"kind"`
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	IsGroup          bool   `json:"isGroup"`
	IsMuted          bool   `json:"isMuted"`
	IsArchived       bool   `json:"isArchived"`
	IsContactRequest bool   `json:"isContactRequest"`
	FreshMsgCount    int    `json:"freshMessageCounter"`
	LastUpdated      int64  `json:"lastUpdated"`
	SummaryText      string `json:"summaryText2"`
}

type rpcMessage struct {
	ID        int64  `json:"id"`
	ChatID    int64  `json:"chatId"`
	FromID    int64  `json:"fromId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Sender    struct {
		DisplayName string `json:"displayName"`
	} `json:"sender"`
}

type rpcContact struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Address     string `json:"address"`
}

func (b *Backend) ListConversations(ctx context.Context, accountID string) ([]chat.Conversation, error) {
	acct, err := parseID("account", accountID)
	if err != nil {
		return nil, err
	}
	var entries []int64
	if err := b.client.Call(ctx, "get_chatlist_entries", &entries, acct, nil, nil, nil); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []chat.Conversation{}, nil
	}

	var items map[string]json.RawMessage
	if err := b.client.Call(ctx, "get_chatlist_items_by_entries", &items, acct, entries); err != nil {
		return nil, err
	}

	out := make([]chat.Conversation, 0, len(entries))
	for _, id := range entries {
		raw, ok := items[strconv.FormatInt(id, 10)]
		if !ok {
			continue
		}
		var item chatListItem
		// Entries that fail to load come back as {"kind":"Error"}; skip them.
		if err := json.Unmarshal(raw, &item); err != nil || item.Kind != "ChatListItem" {
			continue
		}
		out = append(out, chat.Conversation{
			ID:             strconv.FormatInt(item.ID, 10),
			AccountID:      accountID,
			Name:           item.Name,
			IsGroup:        item.IsGroup,
			Muted:          item.IsMuted,
			Archived:       item.IsArchived,
			ContactRequest: item.IsContactRequest,
			UnreadCount:    item.FreshMsgCount,
			LastActivity:   fromMillis(item.LastUpdated),
			Summary:        item.SummaryText,
		})
	}
	return out, nil
}

// Open marks the chat as noticed, which is what opening it in a client does
// on the core side.
func (b *Backend) Open(ctx context.Context, accountID, chatID string) error {
	acct, chatNum, err := parseChat(accountID, chatID)
	if err != nil {
		return err
	}
	return b.client.Call(ctx, "marknoticed_chat", nil, acct, chatNum)
}

func (b *Backend) Send(ctx context.Context, accountID, chatID, text string) (string, error) {
	acct, chatNum, err := parseChat(accountID, chatID)
	if err != nil {
		return "", err
	}
	var msgID int64
	if err := b.client.Call(ctx, "misc_send_text_message", &msgID, acct, chatNum, text); err != nil {
		return "", err
	}
	return strconv.FormatInt(msgID, 10), nil
}

func (b *Backend) FetchHistory(ctx context.Context, accountID, chatID string, limit int) ([]chat.Message, error) {
	acct, chatNum, err := parseChat(accountID, chatID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := b.client.Call(ctx, "get_message_ids", &ids, acct, chatNum, false, false); err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	if len(ids) == 0 {
		return []chat.Message{}, nil
	}

	var raw map[string]json.RawMessage
	if err := b.client.Call(ctx, "get_messages", &raw, acct, ids); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		data, ok := raw[strconv.FormatInt(id, 10)]
		if !ok {
			continue
		}
		var m rpcMessage
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, convertMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (b *Backend) SearchContacts(ctx context.Context, accountID, query string) ([]chat.Contact, error) {
	acct, err := parseID("account", accountID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := b.client.Call(ctx, "get_contact_ids", &ids, acct, 0, query); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []chat.Contact{}, nil
	}
	var raw map[string]rpcContact
	if err := b.client.Call(ctx, "get_contacts_by_ids", &raw, acct, ids); err != nil {
		return nil, err
	}
	out := make([]chat.Contact, 0, len(ids))
	for _, id := range ids {
		c, ok := raw[strconv.FormatInt(id, 10)]
		if !ok {
			continue
		}
		out = append(out, chat.Contact{
			ID:      strconv.FormatInt(c.ID, 10),
			Name:    c.DisplayName,
			Address: c.Address,
		})
	}
	return out, nil
}

func (b *Backend) CreateChat(ctx context.Context, accountID, contactID string) (string, error) {
	acct, err := parseID("account", accountID)
	if err != nil {
		return "", err
	}
	contact, err := parseID("contact", contactID)
	if err != nil {
		return "", err
	}
	var chatNum int64
	if err := b.client.Call(ctx, "create_chat_by_contact_id", &chatNum, acct, contact); err != nil {
		return "", err
	}
	return strconv.FormatInt(chatNum, 10), nil
}

// Message fetches a single message, used to resolve incoming-message events.
func (b *Backend) Message(ctx context.Context, accountID string, msgID int64) (chat.Message, error) {
	acct, err := parseID("account", accountID)
	if err != nil {
		return chat.Message{}, err
	}
	var m rpcMessage
	if err := b.client.Call(ctx, "get_message", &m, acct, msgID); err != nil {
		return chat.Message{}, err
	}
	return convertMessage(m), nil
}

// eventEnvelope is the payload of an "event" notification.
type eventEnvelope struct {
	ContextID int64 `json:"contextId"`
	Event     struct {
		Kind   string `json:"kind"`
		ChatID int64  `json:"chatId"`
		MsgID  int64  `json:"msgId"`
	} `json:"event"`
}

// IncomingNotifications returns a notification handler that resolves
// IncomingMsg events and passes the messages to handler. Resolution runs in
// its own goroutine so the read loop never blocks on a nested call.
func (b *Backend) IncomingNotifications(ctx context.Context, handler chat.IncomingHandler) func(Notification) {
	return func(n Notification) {
		if n.Method != "event" {
			return
		}
		var env eventEnvelope
		if err := json.Unmarshal(n.Params, &env); err != nil || env.Event.Kind != "IncomingMsg" {
			return
		}
		accountID := strconv.FormatInt(env.ContextID, 10)
		go func() {
			msg, err := b.Message(ctx, accountID, env.Event.MsgID)
			if err != nil {
				b.client.logger.Warn("resolve incoming message", "error", err, "msg_id", env.Event.MsgID)
				return
			}
			handler(ctx, accountID, msg)
		}()
	}
}

func convertMessage(m rpcMessage) chat.Message {
	return chat.Message{
		ID:        strconv.FormatInt(m.ID, 10),
		ChatID:    strconv.FormatInt(m.ChatID, 10),
		Sender:    m.Sender.DisplayName,
		Text:      m.Text,
		Outgoing:  m.FromID == contactIDSelf,
		Timestamp: time.Unix(m.Timestamp, 0),
	}
}

func parseChat(accountID, chatID string) (int64, int64, error) {
	acct, err := parseID("account", accountID)
	if err != nil {
		return 0, 0, err
	}
	chatNum, err := parseID("chat", chatID)
	if err != nil {
		return 0, 0, err
	}
	return acct, chatNum, nil
}

func parseID(kind, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", kind, value)
	}
	return id, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
