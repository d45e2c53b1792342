package s3

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// newFakeStore returns a Store whose client talks to an in-process bucket.
func newFakeStore() *Store {
	bucket := &fakeBucket{objects: map[string][]byte{}}
	client := s3.New(s3.Options{
		Region:       "eu-west-1",
		Credentials:  aws.AnonymousCredentials{},
		HTTPClient:   &http.Client{Transport: bucket},
		BaseEndpoint: aws.String("http://bucket.test"),
		UsePathStyle: true,
	})
	return &Store{client: client, bucket: "rd3-artifacts", prefix: "runs"}
}

// fakeBucket serves PutObject, GetObject and ListObjectsV2 for one bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	IsTruncated bool
	Contents    []listEntry
}

type listEntry struct {
	Key  string
	Size int
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// path-style: /{bucket}/{key}
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		res := listResult{}
		for k, body := range b.objects {
			if strings.HasPrefix(k, prefix) {
				res.Contents = append(res.Contents, listEntry{Key: k, Size: len(body)})
			}
		}
		sort.Slice(res.Contents, func(i, j int) bool { return res.Contents[i].Key < res.Contents[j].Key })
		out, err := xml.Marshal(res)
		if err != nil {
			return nil, err
		}
		return respond(http.StatusOK, out, http.Header{"Content-Type": {"application/xml"}}), nil
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = unchunk(body)
		b.objects[key] = body
		return respond(http.StatusOK, nil, http.Header{"ETag": {etag(body)}}), nil
	case req.Method == http.MethodGet:
		body, ok := b.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, http.Header{}), nil
		}
		return respond(http.StatusOK, body, http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"ETag":           {etag(body)},
		}), nil
	}
	return respond(http.StatusMethodNotAllowed, nil, http.Header{}), nil
}

func respond(status int, body []byte, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

func etag(body []byte) string {
	sum := sha1.Sum(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// unchunk strips a single-chunk aws-chunked envelope
// ("<hex size>\r\n<data>\r\n0\r\n<trailers>"). Other bodies are returned as is.
func unchunk(body []byte) []byte {
	head, rest, ok := bytes.Cut(body, []byte("\r\n"))
	if !ok {
		return body
	}
	size, err := strconv.ParseInt(string(head), 16, 64)
	if err != nil || size > int64(len(rest)) {
		return body
	}
	if !bytes.HasPrefix(rest[size:], []byte("\r\n0\r\n")) {
		return body
	}
	return rest[:size]
}
