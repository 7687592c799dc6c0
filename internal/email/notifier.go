package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"tradejournal/internal/models"
)

type NotifierConfig struct {
	AppName      string
	FrontendURL  string
	AdminEmail   string
	SupportEmail string
}

// Notifier renders transactional mail and hands it to a Sender in the
// background. Delivery failures are logged and never reach the caller.
type Notifier struct {
	sender    Sender
	cfg       NotifierConfig
	templates map[string]*mailTemplate
	wg        sync.WaitGroup
}

func NewNotifier(sender Sender, cfg NotifierConfig) (*Notifier, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Notifier{sender: sender, cfg: cfg, templates: templates}, nil
}

func (n *Notifier) SendVerification(user *models.User, token string) {
	n.dispatch(templateVerification, user.Email, n.userData(user, n.link("/verify-email", token)))
}

func (n *Notifier) SendPasswordReset(user *models.User, token string) {
	n.dispatch(templatePasswordReset, user.Email, n.userData(user, n.link("/reset-password", token)))
}

func (n *Notifier) SendAccountApproved(user *models.User) {
	n.dispatch(templateAccountApproved, user.Email, n.userData(user, n.link("/login", "")))
}

func (n *Notifier) SendRegistrationPending(user *models.User) {
	n.dispatch(templateRegistrationPending, user.Email, n.userData(user, ""))
}

func (n *Notifier) SendAdminNewRegistration(user *models.User) {
	if n.cfg.AdminEmail == "" {
		return
	}
	data := n.userData(user, n.link("/admin/pending-users", ""))
	data.Name = fullName(user)
	data.RegisteredAt = user.CreatedAt.UTC().Format(time.RFC1123)
	n.dispatch(templateAdminNewUser, n.cfg.AdminEmail, data)
}

func (n *Notifier) SendAccountDeactivated(user *models.User) {
	n.dispatch(templateAccountDeactivated, user.Email, n.userData(user, ""))
}

// Wait blocks until every dispatched message has been handed to the sender.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(name, to string, data templateData) {
	tmpl, ok := n.templates[name]
	if !ok {
		slog.Error("unknown email template", "component", "email", "template", name)
		return
	}

	msg, err := tmpl.render(to, data)
	if err != nil {
		slog.Error("error rendering email", "component", "email", "template", name, "error", err)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), smtpTimeout+5*time.Second)
		defer cancel()

		if err := n.sender.Send(ctx, msg); err != nil {
			slog.Error("error sending email", "component", "email", "template", name, "to", to, "error", err)
			return
		}
		slog.Info("email sent", "component", "email", "template", name, "to", to)
	}()
}

func (n *Notifier) userData(user *models.User, link string) templateData {
	return templateData{
		AppName:      n.cfg.AppName,
		Name:         user.DisplayName(),
		Email:        user.Email,
		Link:         link,
		SupportEmail: n.cfg.SupportEmail,
	}
}

func (n *Notifier) link(path, token string) string {
	if token == "" {
		return n.cfg.FrontendURL + path
	}
	return fmt.Sprintf("%s%s?token=%s", n.cfg.FrontendURL, path, url.QueryEscape(token))
}

func fullName(user *models.User) string {
	var parts []string
	if user.FirstName != nil && *user.FirstName != "" {
		parts = append(parts, *user.FirstName)
	}
	if user.LastName != nil && *user.LastName != "" {
		parts = append(parts, *user.LastName)
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, " ")
}
