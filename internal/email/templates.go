package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const (
	templateVerification        = "verification"
	templatePasswordReset       = "password_reset"
	templateAccountApproved     = "account_approved"
	templateRegistrationPending = "registration_pending"
	templateAdminNewUser        = "admin_new_registration"
	templateAccountDeactivated  = "account_deactivated"
)

type templateData struct {
	AppName      string
	Name         string
	Email        string
	Link         string
	SupportEmail string
	RegisteredAt string
}

type mailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type builtinTemplate struct {
	subject string
	text    string
	html    string
}

var builtinTemplates = map[string]builtinTemplate{
	templateVerification: {
		subject: `Verify your email - {{.AppName}}`,
		text: `Hi {{.Name}},

Please confirm your email address by opening the link below:

{{.Link}}

The link expires in 24 hours.`,
		html: `<p>Hi {{.Name}},</p>
<p>Please confirm your email address for {{.AppName}}.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>The link expires in 24 hours.</p>`,
	},
	templatePasswordReset: {
		subject: `Reset your password - {{.AppName}}`,
		text: `Hi {{.Name}},

We received a request to reset your password. Open the link below to choose a new one:

{{.Link}}

The link expires in 1 hour. If you did not request this, you can ignore this email.`,
		html: `<p>Hi {{.Name}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in 1 hour. If you did not request this, you can ignore this email.</p>`,
	},
	templateAccountApproved: {
		subject: `Your account has been approved - {{.AppName}}`,
		text: `Hi {{.Name}},

Your {{.AppName}} account is now active. You can sign in here:

{{.Link}}`,
		html: `<p>Hi {{.Name}},</p>
<p>Your {{.AppName}} account is now active.</p>
<p><a href="{{.Link}}">Sign in</a></p>`,
	},
	templateRegistrationPending: {
		subject: `Registration received - {{.AppName}}`,
		text: `Hi {{.Name}},

Thanks for registering with {{.AppName}}. An administrator will review your account and you will get an email once it is activated.`,
		html: `<p>Hi {{.Name}},</p>
<p>Thanks for registering with {{.AppName}}. An administrator will review your account and you will get an email once it is activated.</p>`,
	},
	templateAdminNewUser: {
		subject: `New registration pending approval - {{.AppName}}`,
		text: `A new account is waiting for approval.

Email: {{.Email}}
Name: {{.Name}}
Registered: {{.RegisteredAt}}

Review pending users: {{.Link}}`,
		html: `<p>A new account is waiting for approval.</p>
<ul>
<li>Email: {{.Email}}</li>
<li>Name: {{.Name}}</li>
<li>Registered: {{.RegisteredAt}}</li>
</ul>
<p><a href="{{.Link}}">Review pending users</a></p>`,
	},
	templateAccountDeactivated: {
		subject: `Your account has been deactivated - {{.AppName}}`,
		text: `Hi {{.Name}},

Your {{.AppName}} account has been deactivated. If you think this is a mistake, contact {{.SupportEmail}}.`,
		html: `<p>Hi {{.Name}},</p>
<p>Your {{.AppName}} account has been deactivated.</p>
<p>If you think this is a mistake, contact <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>`,
	},
}

func parseTemplates() (map[string]*mailTemplate, error) {
	out := make(map[string]*mailTemplate, len(builtinTemplates))
	for name, src := range builtinTemplates {
		subject, err := texttemplate.New(name + "_subject").Parse(src.subject)
		if err != nil {
			return nil, fmt.Errorf("parsing %s subject: %w", name, err)
		}
		text, err := texttemplate.New(name + "_text").Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("parsing %s text body: %w", name, err)
		}
		html, err := htmltemplate.New(name + "_html").Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("parsing %s html body: %w", name, err)
		}
		out[name] = &mailTemplate{subject: subject, text: text, html: html}
	}
	return out, nil
}

func (t *mailTemplate) render(to string, data templateData) (*Message, error) {
	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("rendering subject: %w", err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("rendering text body: %w", err)
	}
	if err := t.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}
	return &Message{To: to, Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
