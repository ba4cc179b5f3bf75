package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
)

type lambdaHandler func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// bridge adapts an API Gateway proxy handler to gin. Request bodies are
// always passed base64 encoded so binary uploads survive.
func bridge(handle lambdaHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		headers := make(map[string]string, len(c.Request.Header))
		for k, v := range c.Request.Header {
			headers[k] = v[0]
		}
		query := make(map[string]string)
		for k, v := range c.Request.URL.Query() {
			query[k] = v[0]
		}

		resp, err := handle(c.Request.Context(), events.APIGatewayProxyRequest{
			Path:                  c.Request.URL.Path,
			HTTPMethod:            c.Request.Method,
			Headers:               headers,
			QueryStringParameters: query,
			Body:                  base64.StdEncoding.EncodeToString(body),
			IsBase64Encoded:       true,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		for k, values := range resp.MultiValueHeaders {
			for _, v := range values {
				c.Writer.Header().Add(k, v)
			}
		}

		out := []byte(resp.Body)
		if resp.IsBase64Encoded {
			if out, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "malformed response body"})
				return
			}
		}
		c.Status(resp.StatusCode)
		c.Writer.Write(out)
	}
}
