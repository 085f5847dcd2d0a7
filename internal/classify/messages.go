package classify

import (
	"bytes"
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/wefram/sysui/internal/api"
)

// Message keys. The key is the English text.
const (
	MsgNetworkError   = "Network error: the server could not be reached"
	MsgServerError    = "Server error, please try again later"
	MsgInvalidRequest = "Invalid request"
	MsgUnauthorized   = "You must be signed in to do this"
	MsgForbidden      = "Access denied"
	MsgFailed         = "Request failed"
	MsgSucceeded      = "Request succeeded"
	MsgBadCredentials = "Login or password incorrect"
	MsgSessionExpired = "Your session has expired, please sign in again"
	MsgLoginRequired  = "You are not signed in"
)

var supported = []language.Tag{language.English, language.Russian}

var translations = map[language.Tag]map[string]string{
	language.Russian: {
		MsgNetworkError:   "Ошибка сети: сервер недоступен",
		MsgServerError:    "Ошибка сервера, попробуйте позже",
		MsgInvalidRequest: "Неверный запрос",
		MsgUnauthorized:   "Необходимо войти в систему",
		MsgForbidden:      "Доступ запрещён",
		MsgFailed:         "Не удалось выполнить запрос",
		MsgSucceeded:      "Запрос выполнен успешно",
		MsgBadCredentials: "Неверный логин или пароль",
		MsgSessionExpired: "Сеанс истёк, войдите снова",
		MsgLoginRequired:  "Вы не вошли в систему",
	},
}

var (
	messageCatalog = buildCatalog()
	matcher        = language.NewMatcher(supported)
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, key := range []string{
		MsgNetworkError, MsgServerError, MsgInvalidRequest, MsgUnauthorized, MsgForbidden,
		MsgFailed, MsgSucceeded, MsgBadCredentials, MsgSessionExpired, MsgLoginRequired,
	} {
		_ = b.SetString(language.English, key, key)
	}
	for tag, texts := range translations {
		for key, text := range texts {
			_ = b.SetString(tag, key, text)
		}
	}
	return b
}

// Messages renders user-facing text in one language.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// NewMessages returns messages for the best match of locale ("ru",
// "ru-RU", "en_US"...). Unknown or empty locales fall back to English.
func NewMessages(locale string) *Messages {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = supported[idx]
			}
		}
	}
	return &Messages{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(messageCatalog)),
	}
}

var english = NewMessages("en")

// Language returns the selected language.
func (m *Messages) Language() language.Tag {
	return m.tag
}

// Text returns the localized text for a message key.
func (m *Messages) Text(key string) string {
	return m.printer.Sprintf(key)
}

// ResponseErrorMessage maps a failed request to display text. It has no
// side effects. A request that got no response is a network error; errors
// that did not come from the dispatcher, such as a malformed session body,
// get the generic failure text.
func (m *Messages) ResponseErrorMessage(err error) string {
	var rerr *api.ResponseError
	if !errors.As(err, &rerr) {
		return m.Text(MsgFailed)
	}
	if rerr.Response == nil {
		return m.Text(MsgNetworkError)
	}

	resp := rerr.Response
	switch {
	case resp.Status >= 500:
		return m.Text(MsgServerError)
	case resp.Status == 400:
		if text := specificMessage(rerr); text != "" {
			return text
		}
		return m.Text(MsgInvalidRequest)
	case resp.Status == 401:
		return m.Text(MsgUnauthorized)
	case resp.Status == 403:
		return m.Text(MsgForbidden)
	}

	if text := rerr.ServerMessage(); text != "" {
		return text
	}
	return m.Text(MsgFailed)
}

// ResponseSuccessMessage maps a successful response to display text.
func (m *Messages) ResponseSuccessMessage(resp *api.Response) string {
	if resp == nil || resp.Status == 204 {
		return m.Text(MsgSucceeded)
	}
	if text := resp.Text(); text != "" {
		return text
	}
	return m.Text(MsgSucceeded)
}

// LoginErrorMessage maps a failed login. 400 and 401 mean bad credentials.
func (m *Messages) LoginErrorMessage(err error) string {
	var rerr *api.ResponseError
	if errors.As(err, &rerr) && (rerr.Status() == 400 || rerr.Status() == 401) {
		return m.Text(MsgBadCredentials)
	}
	return m.ResponseErrorMessage(err)
}

// ResponseErrorMessage renders err in English.
func ResponseErrorMessage(err error) string {
	return english.ResponseErrorMessage(err)
}

// ResponseSuccessMessage renders resp in English.
func ResponseSuccessMessage(resp *api.Response) string {
	return english.ResponseSuccessMessage(resp)
}

// LoginErrorMessage renders a login failure in English.
func LoginErrorMessage(err error) string {
	return english.LoginErrorMessage(err)
}

// specificMessage returns a human message carried by a validation error:
// an error envelope field, a JSON string, or plain text. Structured bodies
// yield "".
func specificMessage(rerr *api.ResponseError) string {
	data := bytes.TrimSpace(rerr.Response.Data)
	if len(data) == 0 {
		return ""
	}
	if data[0] == '{' || data[0] == '[' {
		msg := rerr.ServerMessage()
		if msg == "" || msg[0] == '{' || msg[0] == '[' {
			return ""
		}
		return msg
	}
	return rerr.Response.Text()
}
