package engine

import (
	"errors"
	"strings"
)

// Credentials учетные данные из команды k
type Credentials struct {
	Scheme   string
	Realm    string
	Username string
	Password string
}

// ParseCredentials разбирает "[method:realm:username:]password".
// Realm может быть в кавычках. Без префикса вся строка считается паролем.
func ParseCredentials(s string) (Credentials, error) {
	if s == "" {
		return Credentials{}, errors.New("пароль не задан")
	}

	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || scheme == "" || strings.ContainsAny(scheme, " \t\"") {
		return Credentials{Password: s}, nil
	}

	var realm string
	if strings.HasPrefix(rest, "\"") {
		end := strings.Index(rest[1:], "\"")
		if end < 0 {
			return Credentials{Password: s}, nil
		}
		realm = rest[1 : end+1]
		rest = rest[end+2:]
		if !strings.HasPrefix(rest, ":") {
			return Credentials{Password: s}, nil
		}
		rest = rest[1:]
	} else {
		realm, rest, ok = strings.Cut(rest, ":")
		if !ok {
			return Credentials{Password: s}, nil
		}
	}

	user, password, ok := strings.Cut(rest, ":")
	if !ok {
		return Credentials{Password: s}, nil
	}
	return Credentials{Scheme: scheme, Realm: realm, Username: user, Password: password}, nil
}

// Matches проверяет, подходят ли данные к запросу
func (c Credentials) Matches(item AuthItem) bool {
	if c.Scheme != "" && !strings.EqualFold(c.Scheme, item.Scheme) {
		return false
	}
	if c.Realm != "" && c.Realm != item.Realm {
		return false
	}
	return true
}
