package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	nethttp "net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// AWSCredentials holds the parameters of an aws authorization line.
type AWSCredentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	Service      string
}

// ParseAWSParams parses the parameters of an aws authorization line.
// Format: accessKey secretKey [token:<session>] [region:<region>] [service:<service>]
func ParseAWSParams(params []string) (*AWSCredentials, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("aws auth requires: accessKey secretKey [token:...] [region:...] [service:...]")
	}

	creds := &AWSCredentials{
		AccessKey: params[0],
		SecretKey: params[1],
	}
	for _, param := range params[2:] {
		switch {
		case strings.HasPrefix(param, "token:"):
			creds.SessionToken = strings.TrimPrefix(param, "token:")
		case strings.HasPrefix(param, "region:"):
			creds.Region = strings.TrimPrefix(param, "region:")
		case strings.HasPrefix(param, "service:"):
			creds.Service = strings.TrimPrefix(param, "service:")
		}
	}
	return creds, nil
}

// NewAWSAuthHook returns a pre-request hook that signs the outgoing request
// with AWS Signature Version 4 just before send, using the materialized
// request payload.
func NewAWSAuthHook(creds *AWSCredentials, body []byte) PreRequestHook {
	return func(ctx context.Context, req *nethttp.Request) error {
		headers, err := SignAWSRequest(req, creds, body, time.Now().UTC())
		if err != nil {
			return &AuthError{Scheme: "aws", Err: err}
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
		return nil
	}
}

// SignAWSRequest computes the AWS Signature Version 4 header set for req:
// Authorization, X-Amz-Date, X-Amz-Content-Sha256 and, for temporary
// credentials, X-Amz-Security-Token. Region and service fall back to what
// the hostname implies for *.amazonaws.com endpoints.
func SignAWSRequest(req *nethttp.Request, creds *AWSCredentials, payload []byte, t time.Time) (map[string]string, error) {
	if creds == nil {
		return nil, fmt.Errorf("AWS auth credentials not provided")
	}

	region, service := creds.Region, creds.Service
	if region == "" || service == "" {
		guessedService, guessedRegion := guessServiceRegion(req.URL.Hostname())
		if region == "" {
			region = guessedRegion
		}
		if service == "" {
			service = guessedService
		}
	}
	if region == "" || service == "" {
		return nil, fmt.Errorf("aws region and service could not be determined from %s; pass region: and service: parameters", req.URL.Host)
	}

	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	host := req.URL.Host

	// Create canonical headers
	signedHeaders := "host;x-amz-date"
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n", host, amzDate)

	// Calculate payload hash
	payloadHash := sha256Hash(payload)

	// Create canonical URI
	canonicalURI := req.URL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	// Create canonical request
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		createCanonicalQueryString(req.URL.Query()),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	// Create string to sign
	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, region, service)

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hash([]byte(canonicalRequest)),
	}, "\n")

	// Calculate signature
	signingKey := getSignatureKey(creds.SecretKey, dateStamp, region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	headers := map[string]string{
		"Authorization": fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			creds.AccessKey, credentialScope, signedHeaders, signature),
		"X-Amz-Date":           amzDate,
		"X-Amz-Content-Sha256": payloadHash,
	}
	if creds.SessionToken != "" {
		headers["X-Amz-Security-Token"] = creds.SessionToken
	}
	return headers, nil
}

// guessServiceRegion derives (service, region) from hosts shaped like
// service.region.amazonaws.com or service.amazonaws.com.
func guessServiceRegion(hostname string) (service, region string) {
	lower := strings.ToLower(hostname)
	trimmed := strings.TrimSuffix(lower, ".amazonaws.com")
	if trimmed == lower {
		return "", ""
	}
	parts := strings.Split(trimmed, ".")
	service = parts[0]
	if len(parts) > 1 {
		region = parts[len(parts)-1]
	} else {
		region = "us-east-1"
	}
	return service, region
}

func createCanonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	var keys []string
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vals := values[k]
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, fmt.Sprintf("%s=%s", awsEscape(k), awsEscape(v)))
		}
	}

	return strings.Join(pairs, "&")
}

// awsEscape percent-encodes per the canonical request rules, where a space
// is %20 rather than +.
func awsEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func sha256Hash(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func getSignatureKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	kSigning := hmacSHA256(kService, "aws4_request")
	return kSigning
}
