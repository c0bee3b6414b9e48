package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/npezzotti/go-chatserver/internal/types"
)

// BackupMarker is the sentinel prefixed to backup payloads so they can
// be recognized among unrelated traffic on the channel.
const BackupMarker = "###CHATSERVER_DB_BACKUP###"

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	// recoveryScanLimit bounds how many of the channel's most recent
	// messages are scanned for a marked payload at startup.
	recoveryScanLimit = 5
)

// TelegramChannel pushes snapshots to a Telegram chat through the Bot
// API, using the chat as an ad hoc append-only log. There are no
// transactional guarantees: the newest marked message wins.
type TelegramChannel struct {
	baseURL string
	token   string
	chatId  string
	client  *http.Client
	log     *log.Logger
}

func NewTelegramChannel(token, chatId string, logger *log.Logger) *TelegramChannel {
	return &TelegramChannel{
		baseURL: defaultTelegramBaseURL,
		token:   token,
		chatId:  chatId,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

type sendMessageRequest struct {
	ChatId    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	Ok     bool     `json:"ok"`
	Result []update `json:"result"`
}

type update struct {
	Message *struct {
		Text string `json:"text"`
		Date int64  `json:"date"`
	} `json:"message"`
}

// Push sends the snapshot as a marked text message.
func (t *TelegramChannel) Push(ctx context.Context, snap types.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	text := fmt.Sprintf("%s\n<code>%s</code>", BackupMarker, payload)
	return t.sendMessage(ctx, text)
}

// Notify sends a plain, sentinel-free status line. Recovery ignores it.
func (t *TelegramChannel) Notify(ctx context.Context, text string) error {
	return t.sendMessage(ctx, text)
}

func (t *TelegramChannel) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatId:    t.chatId,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Latest fetches the channel's most recent updates and scans them
// newest-first for a marked payload. A payload that carries the marker
// but fails to parse is skipped in favor of the next older one.
func (t *TelegramChannel) Latest(ctx context.Context) (types.Snapshot, bool, error) {
	q := url.Values{}
	q.Set("offset", "-1")
	q.Set("limit", fmt.Sprintf("%d", recoveryScanLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/bot%s/getUpdates?%s", t.baseURL, t.token, q.Encode()), nil)
	if err != nil {
		return types.Snapshot{}, false, fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return types.Snapshot{}, false, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Snapshot{}, false, fmt.Errorf("get updates: unexpected status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return types.Snapshot{}, false, fmt.Errorf("decode updates: %w", err)
	}
	if !apiResp.Ok {
		return types.Snapshot{}, false, fmt.Errorf("get updates: api returned not ok")
	}

	for i := len(apiResp.Result) - 1; i >= 0; i-- {
		msg := apiResp.Result[i].Message
		if msg == nil || !strings.Contains(msg.Text, BackupMarker) {
			continue
		}

		snap, err := parseBackupPayload(msg.Text)
		if err != nil {
			t.log.Printf("skipping malformed backup payload: %v", err)
			continue
		}

		return snap, true, nil
	}

	return types.Snapshot{}, false, nil
}

func parseBackupPayload(text string) (types.Snapshot, error) {
	_, payload, ok := strings.Cut(text, BackupMarker)
	if !ok {
		return types.Snapshot{}, fmt.Errorf("payload missing marker")
	}

	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "<code>")
	payload = strings.TrimSuffix(payload, "</code>")

	var snap types.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("parse payload: %w", err)
	}

	return snap, nil
}
