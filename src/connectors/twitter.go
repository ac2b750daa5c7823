package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fururank/src/model"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrUserNotFound = errors.New("twitter user not found")

const (
	DefaultMaxTotalTweets = 12000
	twitterTimeLayout     = time.RFC3339
)

// User is the account data needed to track and validate a commentator.
type User struct {
	ID        string
	Handle    string
	CreatedAt time.Time
}

// Post is a search hit with its author resolved.
type Post struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	CreatedAt    time.Time
	Text         string
}

type twitterUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type twitterTweet struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type twitterError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type userResponse struct {
	Data   *twitterUser   `json:"data"`
	Errors []twitterError `json:"errors"`
}

type tweetsResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
	Errors []twitterError `json:"errors"`
}

// TwitterClient talks to the Twitter v2 API with an app bearer token. All
// requests share one rate limiter.
type TwitterClient struct {
	http      *resty.Client
	limiter   *rate.Limiter
	pageSize  int
	maxTweets int
}

func NewTwitterClient(cfg Config) *TwitterClient {
	baseURL := strings.TrimRight(cfg.TwitterBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twitter.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	if cfg.TwitterBearerToken == "" {
		logger.Warn("TWITTER_BEARER_TOKEN is empty, requests will be rejected")
	}

	perSec := cfg.TwitterRatePerSec
	if perSec <= 0 {
		perSec = 1
	}
	pageSize := cfg.TwitterPageSize
	if pageSize < 5 || pageSize > 100 {
		pageSize = 100
	}

	return &TwitterClient{
		http: newRestClient(baseURL, cfg.HTTPTimeout).
			SetAuthToken(cfg.TwitterBearerToken).
			SetHeader("Accept", "application/json"),
		limiter:   rate.NewLimiter(rate.Limit(perSec), 1),
		pageSize:  pageSize,
		maxTweets: DefaultMaxTotalTweets,
	}
}

// WithMaxTweets caps how many tweets FetchTweets returns.
func (c *TwitterClient) WithMaxTweets(n int) *TwitterClient {
	if n > 0 {
		c.maxTweets = n
	}
	return c
}

func (c *TwitterClient) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("twitter %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("twitter %s: unexpected status %d: %s", path, resp.StatusCode(), truncate(resp.String(), 256))
	}
	return nil
}

func (c *TwitterClient) LookupUser(ctx context.Context, handle string) (*User, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")

	var out userResponse
	err := c.get(ctx, "/2/users/by/username/"+handle, map[string]string{
		"user.fields": "created_at",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%s: %w", handle, ErrUserNotFound)
	}

	created, _ := parseTwitterTime(out.Data.CreatedAt)
	return &User{ID: out.Data.ID, Handle: out.Data.Username, CreatedAt: created}, nil
}

// FetchTweets walks the user's timeline backwards until since, stopping at
// the configured maximum. Tweets come back newest first.
func (c *TwitterClient) FetchTweets(ctx context.Context, userID string, since time.Time) ([]model.Tweet, error) {
	query := map[string]string{
		"max_results":  strconv.Itoa(c.pageSize),
		"tweet.fields": "created_at",
		"start_time":   since.UTC().Format(twitterTimeLayout),
	}

	var tweets []model.Tweet
	for {
		var page tweetsResponse
		if err := c.get(ctx, "/2/users/"+userID+"/tweets", query, &page); err != nil {
			return nil, err
		}

		for _, tw := range page.Data {
			posted, err := parseTwitterTime(tw.CreatedAt)
			if err != nil {
				logger.WithError(err).WithField("tweet", tw.ID).Warn("Skipping tweet with bad timestamp")
				continue
			}
			tweets = append(tweets, model.Tweet{ExternalID: tw.ID, PostedAt: posted, Text: tw.Text})
			if len(tweets) >= c.maxTweets {
				logger.WithFields(map[string]interface{}{
					"user":  userID,
					"limit": c.maxTweets,
				}).Warn("Tweet limit reached, stopping pagination")
				return tweets, nil
			}
		}

		if page.Meta.NextToken == "" {
			return tweets, nil
		}
		query["pagination_token"] = page.Meta.NextToken
	}
}

// SearchRecent returns posts matching query created after since, with
// author handles resolved from the expansion.
func (c *TwitterClient) SearchRecent(ctx context.Context, query string, since time.Time) ([]Post, error) {
	params := map[string]string{
		"query":        query,
		"max_results":  strconv.Itoa(c.pageSize),
		"tweet.fields": "created_at,author_id",
		"expansions":   "author_id",
		"user.fields":  "username",
		"start_time":   since.UTC().Format(twitterTimeLayout),
	}

	var posts []Post
	for {
		var page tweetsResponse
		if err := c.get(ctx, "/2/tweets/search/recent", params, &page); err != nil {
			return nil, err
		}

		handles := make(map[string]string, len(page.Includes.Users))
		for _, u := range page.Includes.Users {
			handles[u.ID] = u.Username
		}
		for _, tw := range page.Data {
			created, _ := parseTwitterTime(tw.CreatedAt)
			posts = append(posts, Post{
				ID:           tw.ID,
				AuthorID:     tw.AuthorID,
				AuthorHandle: handles[tw.AuthorID],
				CreatedAt:    created,
				Text:         tw.Text,
			})
		}

		if page.Meta.NextToken == "" || len(posts) >= c.maxTweets {
			return posts, nil
		}
		params["next_token"] = page.Meta.NextToken
	}
}

func parseTwitterTime(s string) (time.Time, error) {
	t, err := time.Parse(twitterTimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
