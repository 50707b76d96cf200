package imapmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"duckmail-archive/internal/archive/domain"
)

// pageSize mirrors the provider-page granularity of the HTTP adapters; the
// sync engine paginates newest-first the same way against both.
const pageSize = 50

// Client adapts a generic IMAP server to the MailProvider contract used by
// the sync engine. Sessions hold a live connection with INBOX selected and
// are released through CloseSession. Remote ids are IMAP UIDs.
type Client struct {
	addr string

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	conn  *imapclient.Client
	total uint32
}

// NewClient creates an adapter for one IMAP endpoint ("host:port", TLS).
func NewClient(addr string) *Client {
	return &Client{
		addr:     addr,
		sessions: make(map[string]*session),
	}
}

// CreateSession dials the server, authenticates, and selects INBOX.
func (c *Client) CreateSession(ctx context.Context, email, password string) (string, error) {
	conn, err := imapclient.DialTLS(c.addr, nil)
	if err != nil {
		return "", &domain.ProviderError{Op: "create-session", Err: fmt.Errorf("dial %s: %w", c.addr, err)}
	}

	if err := conn.Login(email, password); err != nil {
		_ = conn.Logout()
		// IMAP has no status codes; a rejected LOGIN is a credential failure.
		return "", &domain.ProviderError{Op: "create-session", Status: 401, Err: err}
	}

	mbox, err := conn.Select("INBOX", true)
	if err != nil {
		_ = conn.Logout()
		return "", &domain.ProviderError{Op: "create-session", Err: fmt.Errorf("select inbox: %w", err)}
	}

	token := uuid.New().String()
	c.mu.Lock()
	c.sessions[token] = &session{conn: conn, total: mbox.Messages}
	c.mu.Unlock()
	return token, nil
}

// CloseSession logs out and forgets the connection behind token.
func (c *Client) CloseSession(token string) {
	c.mu.Lock()
	sess, ok := c.sessions[token]
	if ok {
		delete(c.sessions, token)
	}
	c.mu.Unlock()
	if ok {
		_ = sess.conn.Logout()
	}
}

func (c *Client) session(op, token string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[token]
	if !ok {
		return nil, &domain.ProviderError{Op: op, Status: 401, Err: errors.New("unknown session token")}
	}
	return sess, nil
}

// ListMessages returns envelopes newest-first, pageSize per page.
func (c *Client) ListMessages(ctx context.Context, token string, page int) (domain.MessagePage, error) {
	sess, err := c.session("list-messages", token)
	if err != nil {
		return domain.MessagePage{}, err
	}

	total := int(sess.total)
	to := total - (page-1)*pageSize
	if to < 1 {
		return domain.MessagePage{}, nil
	}
	from := to - pageSize + 1
	if from < 1 {
		from = 1
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(uint32(from), uint32(to))

	messages := make(chan *imap.Message, pageSize)
	done := make(chan error, 1)
	go func() {
		done <- sess.conn.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var items []domain.MessageSummary
	for msg := range messages {
		items = append(items, summaryFromEnvelope(msg))
	}
	if err := <-done; err != nil {
		return domain.MessagePage{}, &domain.ProviderError{Op: "list-messages", Err: err}
	}

	// Fetch yields ascending sequence numbers; callers expect newest first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return domain.MessagePage{Items: items, HasNext: from > 1}, nil
}

// GetMessageDetail fetches the full body of one message by UID.
func (c *Client) GetMessageDetail(ctx context.Context, token, remoteID string) (domain.MessageDetail, error) {
	sess, err := c.session("get-message-detail", token)
	if err != nil {
		return domain.MessageDetail{}, err
	}

	uid, err := strconv.ParseUint(remoteID, 10, 32)
	if err != nil {
		return domain.MessageDetail{}, &domain.ProviderError{Op: "get-message-detail", Status: 404, Err: fmt.Errorf("invalid uid %q", remoteID)}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.conn.UidFetch(seqset, items, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		fetched = msg
	}
	if err := <-done; err != nil {
		return domain.MessageDetail{}, &domain.ProviderError{Op: "get-message-detail", Err: err}
	}
	if fetched == nil {
		return domain.MessageDetail{}, &domain.ProviderError{Op: "get-message-detail", Status: 404, Err: errors.New("message not found")}
	}

	summary := summaryFromEnvelope(fetched)
	detail := domain.MessageDetail{
		RemoteID:    remoteID,
		Subject:     summary.Subject,
		FromAddress: summary.FromAddress,
	}
	if fetched.Envelope != nil {
		if !fetched.Envelope.Date.IsZero() {
			date := fetched.Envelope.Date
			detail.ReceivedAt = &date
		}
		for _, addr := range fetched.Envelope.To {
			if a := addr.Address(); a != "" {
				detail.ToAddresses = append(detail.ToAddresses, a)
			}
		}
	}

	if body := fetched.GetBody(section); body != nil {
		text, html := extractBodies(body)
		detail.BodyText = text
		detail.BodyHTML = html
		detail.Snippet = makeSnippet(text)
	}
	return detail, nil
}

// DeleteMessage flags the message deleted and expunges it.
func (c *Client) DeleteMessage(ctx context.Context, token, remoteID string) error {
	sess, err := c.session("delete-message", token)
	if err != nil {
		return err
	}

	uid, err := strconv.ParseUint(remoteID, 10, 32)
	if err != nil {
		return &domain.ProviderError{Op: "delete-message", Status: 404, Err: fmt.Errorf("invalid uid %q", remoteID)}
	}

	// Deletion needs a writable mailbox; sessions select INBOX read-only.
	if _, err := sess.conn.Select("INBOX", false); err != nil {
		return &domain.ProviderError{Op: "delete-message", Err: err}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := sess.conn.UidStore(seqset, item, flags, nil); err != nil {
		return &domain.ProviderError{Op: "delete-message", Err: err}
	}
	if err := sess.conn.Expunge(nil); err != nil {
		return &domain.ProviderError{Op: "delete-message", Err: err}
	}
	return nil
}

func summaryFromEnvelope(msg *imap.Message) domain.MessageSummary {
	summary := domain.MessageSummary{
		RemoteID: strconv.FormatUint(uint64(msg.Uid), 10),
	}
	if msg.Envelope != nil {
		summary.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			summary.FromAddress = msg.Envelope.From[0].Address()
		}
	}
	return summary
}

func extractBodies(r io.Reader) (text, html string) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", ""
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if text == "" {
				text = string(body)
			}
		case "text/html":
			if html == "" {
				html = string(body)
			}
		}
	}
	return text, html
}

func makeSnippet(text string) string {
	snippet := strings.Join(strings.Fields(text), " ")
	if len(snippet) > 160 {
		cut := 160
		// Back up to a rune boundary so multi-byte text is not split.
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return snippet
}
