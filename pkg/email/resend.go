package email

import (
	"bytes"
	"html/template"
	"time"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"

	"github.com/sefazor/ourphotos-kiosk/internal/config"
)

var albumReadyTemplate = template.Must(template.New("album-ready").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Your photos are ready{{if .OwnerName}}, {{.OwnerName}}{{end}}!</h2>
  <p>Thanks for visiting {{.EventTitle}}. Your album <strong>{{.Code}}</strong> is paid and unlocked.</p>
  <p><a href="{{.AlbumLink}}">Open your album</a></p>
  <p style="color: #888; font-size: 12px;">&copy; {{.Year}} OurPhotos</p>
</body>
</html>`))

type EmailService struct {
	client      *resend.Client
	from        string
	fromName    string
	frontendURL string
	logger      *zap.Logger
}

func NewEmailService(cfg config.EmailConfig, logger *zap.Logger) *EmailService {
	return &EmailService{
		client:      resend.NewClient(cfg.ResendAPIKey),
		from:        cfg.FromAddress,
		fromName:    cfg.FromName,
		frontendURL: cfg.FrontendURL,
		logger:      logger.Named("email"),
	}
}

type AlbumReady struct {
	To         string
	OwnerName  string
	EventTitle string
	Code       string
}

func (s *EmailService) SendAlbumReady(msg AlbumReady) error {
	s.logger.Info("sending album ready email", zap.String("to", msg.To), zap.String("code", msg.Code))

	html, err := renderAlbumReady(msg, s.frontendURL)
	if err != nil {
		s.logger.Error("album ready template failed", zap.String("code", msg.Code), zap.Error(err))
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.fromName + " <" + s.from + ">",
		To:      []string{msg.To},
		Subject: "Your photo album is ready",
		Html:    html,
	}

	resp, err := s.client.Emails.Send(params)
	if err != nil {
		s.logger.Error("failed to send album ready email", zap.String("to", msg.To), zap.Error(err))
		return err
	}

	s.logger.Info("album ready email sent", zap.String("to", msg.To), zap.String("id", resp.Id))
	return nil
}

func renderAlbumReady(msg AlbumReady, frontendURL string) (string, error) {
	data := map[string]interface{}{
		"OwnerName":  msg.OwnerName,
		"EventTitle": msg.EventTitle,
		"Code":       msg.Code,
		"AlbumLink":  frontendURL + "/album/" + msg.Code,
		"Year":       time.Now().Year(),
	}

	var body bytes.Buffer
	if err := albumReadyTemplate.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}
