package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type mailProviderClient struct {
	log        logger.Logger
	cfg        *config.MailProviderConfig
	tokens     interfaces.TokenProvider
	httpClient *http.Client
}

func NewMailProviderClient(log logger.Logger, cfg *config.MailProviderConfig, tokens interfaces.TokenProvider) interfaces.MailProviderClient {
	return &mailProviderClient{
		log:        log,
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// doRequest issues one authenticated request against the mail API and returns
// the raw body. A 204 or an empty 2xx body comes back as a synthetic success
// document so callers can decode uniformly.
func (c *mailProviderClient) doRequest(ctx context.Context, method, path string, payload interface{}, extraHeaders map[string]string) ([]byte, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	requestURL := strings.TrimSuffix(c.cfg.APIBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrMessageNotFound
		}
		return nil, &RemoteAPIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return []byte(`{"status":"success"}`), nil
	}

	return respBody, nil
}

func (c *mailProviderClient) mailboxPath(suffix string) string {
	return fmt.Sprintf("/users/%s%s", url.PathEscape(c.cfg.SenderAddress), suffix)
}

func (c *mailProviderClient) ListMessages(ctx context.Context, folder string, top int) ([]dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.ListMessages")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	span.LogKV("folder", folder, "top", top)

	query := url.Values{}
	query.Set("$top", fmt.Sprintf("%d", top))
	query.Set("$orderby", "receivedDateTime desc")

	path := c.mailboxPath(fmt.Sprintf("/mailFolders/%s/messages?%s", url.PathEscape(folder), query.Encode()))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list dto.ProviderMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return list.Value, nil
}

func (c *mailProviderClient) GetMessage(ctx context.Context, messageID string) (*dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.GetMessage")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, messageID)

	body, err := c.doRequest(ctx, http.MethodGet, c.mailboxPath("/messages/"+url.PathEscape(messageID)), nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var message dto.ProviderMessage
	if err := json.Unmarshal(body, &message); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

type draftMessagePayload struct {
	Subject      string                  `json:"subject"`
	Body         dto.ProviderItemBody    `json:"body"`
	ToRecipients []dto.ProviderRecipient `json:"toRecipients"`
	CcRecipients []dto.ProviderRecipient `json:"ccRecipients,omitempty"`
}

// SendMessage creates a draft first so the provider assigns the message,
// conversation and internet message identifiers, then sends the draft. The
// returned identifiers let the caller register the thread for reply polling.
func (c *mailProviderClient) SendMessage(ctx context.Context, request dto.SendMessageRequest) (*dto.SendMessageResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.SendMessage")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	span.LogKV("subject", request.Subject, "recipients", len(request.To))

	if len(request.To) == 0 {
		err := errors.New("send request has no recipients")
		tracing.TraceErr(span, err)
		return nil, err
	}

	payload := draftMessagePayload{
		Subject:      request.Subject,
		Body:         bodyFromRequest(request),
		ToRecipients: toRecipients(request.To),
		CcRecipients: toRecipients(request.Cc),
	}

	draftBody, err := c.doRequest(ctx, http.MethodPost, c.mailboxPath("/messages"), payload, nil)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "draft create failed"))
		return nil, err
	}

	var draft dto.ProviderMessage
	if err := json.Unmarshal(draftBody, &draft); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	sendPath := c.mailboxPath("/messages/" + url.PathEscape(draft.ID) + "/send")
	if _, err := c.doRequest(ctx, http.MethodPost, sendPath, nil, nil); err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "draft send failed"))
		return nil, err
	}

	tracing.TagEntity(span, draft.ID)
	return &dto.SendMessageResult{
		MessageID:         draft.ID,
		ConversationID:    draft.ConversationID,
		InternetMessageID: draft.InternetMessageID,
	}, nil
}

func (c *mailProviderClient) ReplyToMessage(ctx context.Context, messageID string, comment string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.ReplyToMessage")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, messageID)

	payload := map[string]string{"comment": comment}
	path := c.mailboxPath("/messages/" + url.PathEscape(messageID) + "/reply")
	if _, err := c.doRequest(ctx, http.MethodPost, path, payload, nil); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *mailProviderClient) MoveMessage(ctx context.Context, messageID string, destinationFolder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.MoveMessage")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, messageID)
	span.LogKV("destination", destinationFolder)

	payload := map[string]string{"destinationId": destinationFolder}
	path := c.mailboxPath("/messages/" + url.PathEscape(messageID) + "/move")
	if _, err := c.doRequest(ctx, http.MethodPost, path, payload, nil); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *mailProviderClient) DeleteMessage(ctx context.Context, messageID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.DeleteMessage")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, messageID)

	path := c.mailboxPath("/messages/" + url.PathEscape(messageID))
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *mailProviderClient) ListAttachments(ctx context.Context, messageID string) ([]dto.ProviderAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.ListAttachments")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, messageID)

	path := c.mailboxPath("/messages/" + url.PathEscape(messageID) + "/attachments")
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list dto.ProviderAttachmentList
	if err := json.Unmarshal(body, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return list.Value, nil
}

func (c *mailProviderClient) GetAttachment(ctx context.Context, messageID string, attachmentID string) (*dto.ProviderAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.GetAttachment")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, attachmentID)

	path := c.mailboxPath("/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var attachment dto.ProviderAttachment
	if err := json.Unmarshal(body, &attachment); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &attachment, nil
}

// SearchMessages wraps the query in quotes for phrase matching. The provider
// rejects $search combined with $orderby, so results are sorted by received
// time on this side instead.
func (c *mailProviderClient) SearchMessages(ctx context.Context, query string, top int) ([]dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.SearchMessages")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	span.LogKV("query", query, "top", top)

	params := url.Values{}
	params.Set("$search", fmt.Sprintf("%q", strings.ReplaceAll(query, `"`, "")))
	params.Set("$top", fmt.Sprintf("%d", top))

	path := c.mailboxPath("/messages?" + params.Encode())
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list dto.ProviderMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	messages := list.Value
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedDateTime.After(messages[j].ReceivedDateTime)
	})
	return messages, nil
}

func (c *mailProviderClient) ListMessagesByConversationID(ctx context.Context, providerConversationID string) ([]dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.ListMessagesByConversationID")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	tracing.TagEntity(span, providerConversationID)

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", strings.ReplaceAll(providerConversationID, "'", "''")))
	params.Set("$orderby", "receivedDateTime asc")

	path := c.mailboxPath("/messages?" + params.Encode())
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list dto.ProviderMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return list.Value, nil
}

func (c *mailProviderClient) ListMessagesSince(ctx context.Context, folder string, since time.Time) ([]dto.ProviderMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailProviderClient.ListMessagesSince")
	defer span.Finish()
	tracing.TagComponentMailProvider(span)
	span.LogKV("folder", folder, "since", since.Format(time.RFC3339))

	params := url.Values{}
	// inclusive so a message received exactly at the watermark is not lost;
	// callers dedup on message id
	params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	params.Set("$orderby", "receivedDateTime asc")

	path := c.mailboxPath(fmt.Sprintf("/mailFolders/%s/messages?%s", url.PathEscape(folder), params.Encode()))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var list dto.ProviderMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return list.Value, nil
}

func bodyFromRequest(request dto.SendMessageRequest) dto.ProviderItemBody {
	if request.BodyHTML != "" {
		return dto.ProviderItemBody{ContentType: "HTML", Content: request.BodyHTML}
	}
	return dto.ProviderItemBody{ContentType: "Text", Content: request.BodyText}
}

func toRecipients(addresses []string) []dto.ProviderRecipient {
	recipients := make([]dto.ProviderRecipient, 0, len(addresses))
	for _, address := range addresses {
		recipients = append(recipients, dto.ProviderRecipient{
			EmailAddress: dto.ProviderEmailAddress{Address: address},
		})
	}
	return recipients
}
