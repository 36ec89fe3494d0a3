package util

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	bufpool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func GetBuf() *bytes.Buffer {
	buf := bufpool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func PutBuf(b *bytes.Buffer) {
	bufpool.Put(b)
}

func ParseUrl(u string) (*url.URL, error) {
	appurl, err := url.Parse(u)
	if err != nil {
		return nil, err
	}
	err = Validurl(appurl)
	if err != nil {
		return nil, err
	}
	return appurl, nil
}

func Validurl(u *url.URL) error {
	if u == nil {
		return fmt.Errorf("url is null")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme '%s' is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is empty")
	}
	return nil
}

// JoinUrl appends path to the server address, keeping exactly one slash between them.
func JoinUrl(server, path string) string {
	return strings.TrimRight(server, "/") + "/" + strings.TrimLeft(path, "/")
}
