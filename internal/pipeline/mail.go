package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"nexus/internal"
	"nexus/internal/template"
	"nexus/internal/util"
)

type MailOutcome struct {
	EmailID int
	BatchID string
	Items   int
	Skipped bool
}

func (p *Processor) ProcessEmailByProviderMessageID(ctx context.Context, provider, messageID string, tpl template.Template) (MailOutcome, error) {
	email, err := p.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return MailOutcome{}, err
	}
	return p.ProcessEmail(ctx, email, tpl)
}

func (p *Processor) ProcessPendingMail(ctx context.Context, limit int, provider string, tpl template.Template) (int, int, error) {
	pending, err := p.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedItems := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		out, err := p.ProcessEmail(ctx, email, tpl)
		if err != nil {
			return processedEmails, processedItems, err
		}
		processedEmails++
		processedItems += out.Items
	}
	return processedEmails, processedItems, nil
}

// ProcessEmail turns one fetched mail message into a batch. PDF
// attachments win over the HTML body; a message that looks like an
// invoice but carries neither is skipped.
func (p *Processor) ProcessEmail(ctx context.Context, email internal.EmailRow, tpl template.Template) (MailOutcome, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return MailOutcome{}, err
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailOutcome{}, err
	}

	subject := firstNonEmpty(env.GetHeader("Subject"), email.Subject)

	type attachment struct {
		name    string
		content []byte
	}
	var pdfs []attachment
	var names []string
	for _, att := range append(env.Attachments, env.Inlines...) {
		name := strings.TrimSpace(att.FileName)
		if name != "" {
			names = append(names, name)
		}
		isPDF := att.ContentType == "application/pdf" || strings.EqualFold(filepath.Ext(name), ".pdf")
		if !isPDF {
			continue
		}
		if name == "" {
			name = "adjunto.pdf"
		}
		pdfs = append(pdfs, attachment{name: name, content: att.Content})
	}

	detect := DetectInvoiceEmail(subject, env.Text, env.HTML, names)
	if !detect.IsInvoice || (len(pdfs) == 0 && strings.TrimSpace(env.HTML) == "") {
		if err := p.db.UpdateEmailStatus(email.ID, "skipped"); err != nil {
			return MailOutcome{}, err
		}
		p.log.Info("pipeline.mail.skipped", "email", email.ID, "subject", subject, "score", detect.Score)
		return MailOutcome{EmailID: email.ID, Skipped: true}, nil
	}

	batchID, err := p.NewBatch(tpl, "mail")
	if err != nil {
		return MailOutcome{}, err
	}

	dir := filepath.Join(p.cfg.UploadDir, batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return MailOutcome{}, err
	}

	var paths []string
	if len(pdfs) > 0 {
		for i, att := range pdfs {
			name := util.SanitizeFilename(att.name, "adjunto.pdf")
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				path = filepath.Join(dir, fmt.Sprintf("%d-%s", i+1, name))
			}
			if err := os.WriteFile(path, att.content, 0o644); err != nil {
				return MailOutcome{}, err
			}
			paths = append(paths, path)
		}
	} else {
		path := filepath.Join(dir, fmt.Sprintf("email-%d.html", email.ID))
		if err := os.WriteFile(path, []byte(env.HTML), 0o644); err != nil {
			return MailOutcome{}, err
		}
		paths = []string{path}
	}

	batch, err := p.ProcessFiles(ctx, batchID, tpl, paths)
	if err != nil {
		return MailOutcome{}, err
	}

	if err := p.db.SetEmailBatch(email.ID, batchID); err != nil {
		return MailOutcome{}, err
	}
	if err := p.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return MailOutcome{}, err
	}

	p.log.Info("pipeline.mail.processed",
		"email", email.ID, "batch", batchID,
		"files", len(paths), "items", len(batch.Items),
	)
	return MailOutcome{EmailID: email.ID, BatchID: batchID, Items: len(batch.Items)}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
