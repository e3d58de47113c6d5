package rest

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// cookieJar is a resettable http.CookieJar owned by one Client
type cookieJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newCookieJar() (*cookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &cookieJar{jar: jar}, nil
}

func (j *cookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *cookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Reset drops every cookie
func (j *cookieJar) Reset() {
	jar, _ := cookiejar.New(nil)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = jar
}
