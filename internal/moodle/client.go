package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/models"
)

const restEndpoint = "/webservice/rest/server.php"

// Config holds the connection settings for one Moodle instance.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements Fetcher, GradeSaver and FileFetcher against the Moodle
// REST webservice protocol (wstoken/wsfunction form posts with JSON replies).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient builds a webservice client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("moodle client requires a base URL and a token")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "moodle_client").Logger(),
	}, nil
}

// wsError is the error envelope Moodle returns in place of a result.
type wsError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call posts one webservice function and decodes the reply into out.
func (c *Client) call(ctx context.Context, function string, params url.Values, out any) error {
	form := url.Values{}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")
	for key, values := range params {
		for _, v := range values {
			form.Add(key, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+restEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", function, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d: %w", function, resp.StatusCode, ErrInvalidResponse)
	}

	// Moodle reports errors as a JSON object with an "exception" key and
	// status 200, so the envelope has to be probed before decoding.
	var envelope wsError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Exception != "" {
		c.logger.Debug().Str("function", function).Str("errorcode", envelope.ErrorCode).Msg("webservice exception")
		if envelope.ErrorCode == "nopermissions" || envelope.ErrorCode == "requireloginerror" || envelope.ErrorCode == "accessexception" {
			return fmt.Errorf("%s: %s: %w", function, envelope.Message, ErrAccessDenied)
		}
		return fmt.Errorf("%s: %s (%s): %w", function, envelope.Message, envelope.ErrorCode, ErrInvalidResponse)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %v: %w", function, err, ErrInvalidResponse)
	}
	return nil
}

// Courses implements Fetcher.
func (c *Client) Courses(ctx context.Context, userID int) ([]models.Course, error) {
	params := url.Values{}
	params.Set("userid", strconv.Itoa(userID))

	var courses []models.Course
	if err := c.call(ctx, "core_enrol_get_users_courses", params, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// EnrolledUsers implements Fetcher.
func (c *Client) EnrolledUsers(ctx context.Context, courseID int) ([]models.User, error) {
	params := url.Values{}
	params.Set("courseid", strconv.Itoa(courseID))
	params.Set("options[0][name]", "userfields")
	params.Set("options[0][value]", "id,fullname,groups")

	var users []models.User
	if err := c.call(ctx, "core_enrol_get_enrolled_users", params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Assignments implements Fetcher.
func (c *Client) Assignments(ctx context.Context, courseIDs []int) (map[int][]models.Assignment, error) {
	params := url.Values{}
	for i, id := range courseIDs {
		params.Set(fmt.Sprintf("courseids[%d]", i), strconv.Itoa(id))
	}

	var reply struct {
		Courses []struct {
			ID          int                 `json:"id"`
			Assignments []models.Assignment `json:"assignments"`
		} `json:"courses"`
	}
	if err := c.call(ctx, "mod_assign_get_assignments", params, &reply); err != nil {
		return nil, err
	}

	byCourse := make(map[int][]models.Assignment, len(reply.Courses))
	for _, course := range reply.Courses {
		byCourse[course.ID] = course.Assignments
	}
	return byCourse, nil
}

// Submissions implements Fetcher.
func (c *Client) Submissions(ctx context.Context, assignmentIDs []int, since time.Time) (map[int][]models.Submission, error) {
	params := assignmentParams(assignmentIDs, since)

	var reply struct {
		Assignments []struct {
			AssignmentID int                 `json:"assignmentid"`
			Submissions  []models.Submission `json:"submissions"`
		} `json:"assignments"`
	}
	if err := c.call(ctx, "mod_assign_get_submissions", params, &reply); err != nil {
		return nil, err
	}

	byAssignment := make(map[int][]models.Submission, len(reply.Assignments))
	for _, a := range reply.Assignments {
		byAssignment[a.AssignmentID] = a.Submissions
	}
	return byAssignment, nil
}

// Grades implements Fetcher.
func (c *Client) Grades(ctx context.Context, assignmentIDs []int, since time.Time) (map[int][]models.Grade, error) {
	params := assignmentParams(assignmentIDs, since)

	var reply struct {
		Assignments []struct {
			AssignmentID int            `json:"assignmentid"`
			Grades       []models.Grade `json:"grades"`
		} `json:"assignments"`
	}
	if err := c.call(ctx, "mod_assign_get_grades", params, &reply); err != nil {
		return nil, err
	}

	byAssignment := make(map[int][]models.Grade, len(reply.Assignments))
	for _, a := range reply.Assignments {
		byAssignment[a.AssignmentID] = a.Grades
	}
	return byAssignment, nil
}

// SaveGrade implements GradeSaver.
func (c *Client) SaveGrade(ctx context.Context, req SaveGradeRequest) error {
	params := url.Values{}
	params.Set("assignmentid", strconv.Itoa(req.AssignmentID))
	params.Set("userid", strconv.Itoa(req.UserID))
	params.Set("grade", strconv.FormatFloat(req.Grade, 'f', 2, 64))
	params.Set("attemptnumber", "-1")
	params.Set("addattempt", "0")
	params.Set("workflowstate", "")
	params.Set("applytoall", boolParam(req.ApplyToAll))
	params.Set("plugindata[assignfeedbackcomments_editor][text]", req.Feedback)
	params.Set("plugindata[assignfeedbackcomments_editor][format]", "1")

	return c.call(ctx, "mod_assign_save_grade", params, nil)
}

// FetchFile implements FileFetcher. Webservice file URLs require the token as
// a query parameter.
func (c *Client) FetchFile(ctx context.Context, fileURL string) ([]byte, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, fmt.Errorf("file url %q: %w", fileURL, err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", fileURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %q: status %d: %w", fileURL, resp.StatusCode, ErrInvalidResponse)
	}
	return io.ReadAll(resp.Body)
}

func assignmentParams(assignmentIDs []int, since time.Time) url.Values {
	params := url.Values{}
	for i, id := range assignmentIDs {
		params.Set(fmt.Sprintf("assignmentids[%d]", i), strconv.Itoa(id))
	}
	if !since.IsZero() {
		params.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	return params
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
