package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/pmboard/pkg/apiclient"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
)

func (c *LoginCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		fmt.Fprint(r.io.Err, "Password: ")
		sc := bufio.NewScanner(r.io.In)
		if !sc.Scan() {
			return errors.New("no password given")
		}
		password = strings.TrimRight(sc.Text(), "\r")
	}

	resp, err := r.client.Login(r.ctx, c.Username, password)
	if err != nil {
		return err
	}

	name := c.Username
	if claims, err := jwtx.Peek(resp.AccessToken); err == nil && claims.Username != "" {
		name = claims.Username
	}
	fmt.Fprintf(r.io.Out, "Logged in as %s\n", name)
	return nil
}

func (c *LogoutCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}
	if err := r.client.Logout(r.ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.io.Out, "Logged out")
	return nil
}

func (c *StatusCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}

	creds, err := r.client.Credentials(r.ctx)
	if err != nil {
		return err
	}
	if !creds.LoggedIn() {
		fmt.Fprintln(r.io.Out, "Not logged in")
		return nil
	}

	fmt.Fprintf(r.io.Out, "Server:  %s\n", r.client.BaseURL)

	claims, err := jwtx.Peek(creds.AccessToken)
	if err != nil {
		fmt.Fprintln(r.io.Out, "Access:  unreadable token")
	} else {
		fmt.Fprintf(r.io.Out, "User:    %s (%s)\n", claims.Username, claims.Role)
		if exp := claims.Expiry(); !exp.IsZero() {
			state := "valid"
			if time.Now().After(exp) {
				state = "expired"
			}
			fmt.Fprintf(r.io.Out, "Access:  %s until %s\n", state, exp.Local().Format(time.RFC3339))
		}
	}

	refresh := "no"
	if creds.RefreshToken != "" {
		refresh = "yes"
	}
	fmt.Fprintf(r.io.Out, "Refresh: %s\n", refresh)
	return nil
}

func (c *RequestCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}

	params, err := parseQuery(c.Query)
	if err != nil {
		return err
	}
	headers, err := parseHeaders(c.Header)
	if err != nil {
		return err
	}

	opts := &apiclient.RequestOptions{
		Method:  strings.ToUpper(c.Args.Method),
		Headers: headers,
		Params:  params,
	}
	if c.Data != "" {
		if !json.Valid([]byte(c.Data)) {
			return errors.New("--data is not valid JSON")
		}
		opts.Body = json.RawMessage(c.Data)
	}

	return r.print(r.client.Request(r.ctx, c.Args.Path, opts))
}

func (c *GetCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}
	params, err := parseQuery(c.Query)
	if err != nil {
		return err
	}
	return r.print(r.client.Request(r.ctx, c.Args.Path, &apiclient.RequestOptions{Params: params}))
}

func (c *ListCommand) Execute([]string) error {
	r := c.r
	if err := r.setup(); err != nil {
		return err
	}
	params, err := parseQuery(c.Query)
	if err != nil {
		return err
	}
	path := "/" + strings.Trim(c.Args.Resource, "/")
	return r.print(r.client.Request(r.ctx, path, &apiclient.RequestOptions{Params: params}))
}

// print writes the response indented. An empty body prints nothing.
func (r *runner) print(raw json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = r.io.Out.Write(buf.Bytes())
	return err
}

func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query %q, want key=value", p)
		}
		params.Add(k, v)
	}
	return params, nil
}

func parseHeaders(lines []string) (map[string]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(lines))
	for _, l := range lines {
		k, v, ok := strings.Cut(l, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", l)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}
