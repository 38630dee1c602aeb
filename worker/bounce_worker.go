package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"churchpilot/config"
	"churchpilot/provider"
	"churchpilot/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"
)

// messageIDRe pulls our message id header back out of a DSN body. Bounce
// reports quote the original headers, so the id survives the round trip.
var messageIDRe = regexp.MustCompile(provider.MessageIDHeader + `:\s*([A-Za-z0-9-]+)`)

// statusCodeRe matches the SMTP status line a DSN carries (e.g. "Status: 5.1.1")
var statusCodeRe = regexp.MustCompile(`(?i)status:\s*([245]\.\d+\.\d+)`)

// BounceWorker polls the configured bounce mailbox for delivery status
// notifications, maps each one back to its originating message, and records
// the bounce. Hard bounces also suppress the recipient address.
type BounceWorker struct {
	db     *gorm.DB
	prefs  *utils.PreferenceStore
	cfg    config.BounceMailboxConfig
	logger *log.Logger
}

func NewBounceWorker(db *gorm.DB, cfg config.BounceMailboxConfig, logger *log.Logger) *BounceWorker {
	return &BounceWorker{
		db:     db,
		prefs:  utils.NewPreferenceStore(db),
		cfg:    cfg,
		logger: logger,
	}
}

func (bw *BounceWorker) Start(ctx context.Context) {
	bw.logger.Println("Starting bounce worker...")

	interval := time.Duration(bw.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)

	for {
		select {
		case <-ticker.C:
			if err := bw.pollMailbox(); err != nil {
				bw.logger.Printf("Bounce mailbox poll failed: %v", err)
			}
		case <-ctx.Done():
			bw.logger.Println("Stopping bounce worker...")
			ticker.Stop()
			return
		}
	}
}

func (bw *BounceWorker) pollMailbox() error {
	imapAddr := fmt.Sprintf("%s:%d", bw.cfg.Host, bw.cfg.Port)

	var imapClient *client.Client
	var err error
	if bw.cfg.UseTLS {
		imapClient, err = client.DialTLS(imapAddr, &tls.Config{ServerName: bw.cfg.Host})
	} else {
		imapClient, err = client.Dial(imapAddr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to bounce mailbox: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(bw.cfg.Username, bw.cfg.Password); err != nil {
		return fmt.Errorf("failed to login to bounce mailbox: %v", err)
	}

	mailbox := bw.cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	processed := 0
	for msg := range messages {
		if err := bw.processDSN(msg); err != nil {
			bw.logger.Printf("Failed to process bounce message %d: %v", msg.SeqNum, err)
			continue
		}
		processed++
	}
	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}

	// Mark everything we looked at as seen so the next poll starts fresh
	seen := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := imapClient.Store(seqset, seen, []interface{}{imap.SeenFlag}, nil); err != nil {
		bw.logger.Printf("Failed to mark bounce messages seen: %v", err)
	}

	if processed > 0 {
		bw.logger.Printf("Processed %d bounce notifications", processed)
	}
	return nil
}

func (bw *BounceWorker) processDSN(msg *imap.Message) error {
	section := imap.BodySectionName{}
	literal := msg.GetBody(&section)
	if literal == nil {
		return fmt.Errorf("message body not found")
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return fmt.Errorf("failed to create message reader: %v", err)
	}

	var body strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to read next part: %v", err)
		}

		switch p.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read body: %v", err)
			}
			body.Write(b)
			body.WriteByte('\n')
		}
	}

	text := body.String()
	match := messageIDRe.FindStringSubmatch(text)
	if match == nil {
		// Not one of ours; leave it for a human
		return nil
	}
	messageID := match[1]

	reason := "bounced"
	if status := statusCodeRe.FindStringSubmatch(text); status != nil {
		reason = status[1]
	} else if msg.Envelope != nil && msg.Envelope.Subject != "" {
		reason = msg.Envelope.Subject
	}

	if err := utils.MarkBounced(bw.db, bw.prefs, messageID, reason); err != nil {
		return err
	}
	utils.LogEvent("bounce_recorded", map[string]interface{}{
		"message_id": messageID,
		"reason":     reason,
		"hard":       utils.IsHardBounce(reason),
	})
	return nil
}
