package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// maxFormMemory is the part of a multipart body kept in memory; larger files
// spill to temporary files that are removed once the form is read.
const maxFormMemory = 32 << 20

var errBadBody = errors.New("malformed request body")

// uploadedFile is one file part of a multipart body.
type uploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// form is a decoded form body.
type form struct {
	Values url.Values
	Files  map[string]*uploadedFile
}

// parseForm decodes an application/x-www-form-urlencoded or multipart/form-data body.
func parseForm(req events.APIGatewayProxyRequest) (*form, error) {
	body, err := requestBody(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}

	mediaType, params, err := mime.ParseMediaType(Header(req, "Content-Type"))
	if err != nil {
		mediaType = "application/x-www-form-urlencoded"
	}

	f := &form{Values: url.Values{}, Files: map[string]*uploadedFile{}}
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: missing multipart boundary", errBadBody)
		}
		mf, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxFormMemory)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		defer mf.RemoveAll()

		for k, vs := range mf.Value {
			f.Values[k] = vs
		}
		for k, fhs := range mf.File {
			if len(fhs) == 0 {
				continue
			}
			uf, err := readFilePart(fhs[0])
			if err != nil {
				return nil, err
			}
			f.Files[k] = uf
		}
	default:
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		f.Values = values
	}
	return f, nil
}

func readFilePart(fh *multipart.FileHeader) (*uploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &uploadedFile{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}

func isJSON(req events.APIGatewayProxyRequest) bool {
	mediaType, _, err := mime.ParseMediaType(Header(req, "Content-Type"))
	if err != nil {
		// Bodies without a content type are treated as JSON.
		return Header(req, "Content-Type") == ""
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodePayload reads a record payload from a JSON object or a form body.
func decodePayload(req events.APIGatewayProxyRequest) (map[string]interface{}, error) {
	if isJSON(req) {
		body, err := requestBody(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		payload := map[string]interface{}{}
		if len(bytes.TrimSpace(body)) == 0 {
			return payload, nil
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadBody, err)
		}
		return payload, nil
	}

	f, err := parseForm(req)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]interface{}, len(f.Values))
	for k, vs := range f.Values {
		if len(vs) > 0 {
			payload[k] = vs[0]
		}
	}
	return payload, nil
}
