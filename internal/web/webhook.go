package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/ingest"
)

var webhookContentTypes = []string{
	"application/json",
	"multipart/form-data",
	"application/x-www-form-urlencoded",
	"message/rfc822",
	"text/plain",
}

// errMalformed marks payloads that could not be decoded into a reply
var errMalformed = errors.New("malformed payload")

// jsonPayload covers the field names used by common inbound-mail providers
type jsonPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Body    string `json:"body"`
	Plain   string `json:"plain"`
	HTML    string `json:"html"`
	Email   string `json:"email"` // full raw MIME message
}

type webhookResponse struct {
	SurveyID           string `json:"surveyId"`
	ResponsesProcessed int    `json:"responsesProcessed"`
	FreeTextSaved      bool   `json:"freeTextSaved"`
	Status             string `json:"status"`
	RepliesDisabled    bool   `json:"repliesDisabled"`
	Skipped            int    `json:"skipped,omitempty"`
	Automated          string `json:"automated,omitempty"`
}

func (s *Server) handleEmailWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	env, err := decodeEnvelope(r)
	if err != nil {
		s.logger.Warn("Rejected webhook payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.ingester.Ingest(r.Context(), env)
	switch {
	case errors.Is(err, ingest.ErrSurveyNotIdentified):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ingest.ErrSurveyNotFound):
		writeError(w, http.StatusNotFound, "survey not found")
		return
	case err != nil:
		s.logger.Error("Failed to ingest reply", zap.String("to", env.To), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		SurveyID:           result.SurveyID,
		ResponsesProcessed: result.ResponsesProcessed,
		FreeTextSaved:      result.FreeTextSaved,
		Status:             string(result.Status),
		RepliesDisabled:    result.RepliesDisabled,
		Skipped:            result.Skipped,
		Automated:          string(result.Automated),
	})
}

// authorized accepts any request when no secret is configured
func (s *Server) authorized(r *http.Request) bool {
	want := s.config.WebhookSecret
	if want == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Secret")
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// decodeEnvelope turns any supported payload into an envelope
func decodeEnvelope(r *http.Request) (ingest.Envelope, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ingest.Envelope{}, fmt.Errorf("%w: content type: %v", errMalformed, err)
	}

	switch mediaType {
	case "application/json":
		var p jsonPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return ingest.Envelope{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return p.envelope()

	case "multipart/form-data", "application/x-www-form-urlencoded":
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return ingest.Envelope{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return formPayload(r.PostForm).envelope()

	case "message/rfc822":
		return rawEnvelope(r.Body)

	case "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return ingest.Envelope{}, fmt.Errorf("%w: %v", errMalformed, err)
		}
		q := r.URL.Query()
		return ingest.Envelope{
			From:    q.Get("from"),
			To:      q.Get("to"),
			Subject: q.Get("subject"),
			Body:    string(body),
		}, nil
	}
	return ingest.Envelope{}, fmt.Errorf("%w: unsupported content type %s", errMalformed, mediaType)
}

func formPayload(form url.Values) jsonPayload {
	return jsonPayload{
		From:    form.Get("from"),
		To:      form.Get("to"),
		Subject: form.Get("subject"),
		Text:    form.Get("text"),
		Body:    form.Get("body"),
		Plain:   form.Get("plain"),
		HTML:    form.Get("html"),
		Email:   form.Get("email"),
	}
}

func (p jsonPayload) envelope() (ingest.Envelope, error) {
	if p.Email != "" {
		env, err := rawEnvelope(strings.NewReader(p.Email))
		if err != nil {
			return env, err
		}
		// Provider-supplied fields win over the raw headers; recipients are merged
		if p.To != "" {
			env.To = strings.Trim(p.To+", "+env.To, ", ")
		}
		if p.From != "" {
			env.From = p.From
		}
		if p.Subject != "" {
			env.Subject = p.Subject
		}
		return env, nil
	}

	body := firstNonEmpty(p.Text, p.Body, p.Plain)
	if strings.TrimSpace(body) == "" && p.HTML != "" {
		body = inbox.HTMLToText(p.HTML)
	}
	if p.To == "" && p.Subject == "" {
		return ingest.Envelope{}, fmt.Errorf("%w: missing to and subject", errMalformed)
	}
	return ingest.Envelope{From: p.From, To: p.To, Subject: p.Subject, Body: body}, nil
}

func rawEnvelope(r io.Reader) (ingest.Envelope, error) {
	email, err := inbox.ParseMessage(r)
	if err != nil {
		return ingest.Envelope{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return ingest.Envelope{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Body:    email.Text(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
