package delivery

import (
	"bytes"
	"html/template"
)

var codeEmailTemplate = template.Must(template.New("code").Parse(`<div style="font-family:sans-serif">
  <h2>{{.Subject}}</h2>
  <p>Your code is:</p>
  <div style="font-size:28px;font-weight:700;letter-spacing:4px">{{.Code}}</div>
  <p>It expires in {{.Minutes}} minutes.</p>
</div>`))

var magicLinkEmailTemplate = template.Must(template.New("magic").Parse(`<div style="font-family:sans-serif">
  <h2>Sign in to ShortTrack</h2>
  <p>Click the link below to sign in. It can be used once and expires in {{.Minutes}} minutes.</p>
  <p><a href="{{.URL}}">Sign in</a></p>
</div>`))

// CodeEmail renders the HTML body for a one-time code email.
func CodeEmail(subject, code string, minutes int) string {
	var buf bytes.Buffer
	_ = codeEmailTemplate.Execute(&buf, struct {
		Subject string
		Code    string
		Minutes int
	}{subject, code, minutes})
	return buf.String()
}

// MagicLinkEmail renders the HTML body for a sign-in link email.
func MagicLinkEmail(url string, minutes int) string {
	var buf bytes.Buffer
	_ = magicLinkEmailTemplate.Execute(&buf, struct {
		URL     template.URL
		Minutes int
	}{template.URL(url), minutes})
	return buf.String()
}
