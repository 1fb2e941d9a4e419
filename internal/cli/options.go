package cli

import "time"

// Options are the global pmctl flags. Every flag can also be set through the
// environment variable named in its env tag; an explicit flag wins.
type Options struct {
	BaseURL       string        `short:"s" long:"server" env:"PMCTL_BASE_URL" default:"http://localhost:8080" description:"dashboard backend base URL"`
	CredentialsDB string        `long:"credentials" env:"PMCTL_CREDENTIALS_DB" description:"credentials database (default: <user config dir>/pmboard/credentials.db)"`
	MasterKey     string        `long:"master-key" env:"PMCTL_MASTER_KEY" description:"key material sealing stored tokens"`
	MasterKeyPath string        `long:"master-key-path" env:"PMCTL_MASTER_KEY_PATH" description:"file holding the master key (wins over --master-key)"`
	Timeout       time.Duration `long:"timeout" env:"PMCTL_TIMEOUT" default:"10s" description:"per-request timeout"`
	LogLevel      string        `long:"log-level" env:"LOG_LEVEL" default:"warn" description:"debug, info, warn or error"`

	Login   LoginCommand   `command:"login" description:"Log in and store credentials"`
	Logout  LogoutCommand  `command:"logout" description:"Revoke the session and clear stored credentials"`
	Status  StatusCommand  `command:"status" description:"Show the stored session"`
	Request RequestCommand `command:"request" description:"Send an authenticated request"`
	Get     GetCommand     `command:"get" description:"GET a path"`
	List    ListCommand    `command:"list" description:"List a resource collection, e.g. tasks -q project_id=5"`
}

type LoginCommand struct {
	Username string `short:"u" long:"username" required:"true" description:"account name"`
	Password string `short:"p" long:"password" env:"PMCTL_PASSWORD" description:"password (read from stdin when omitted)"`

	r *runner
}

type LogoutCommand struct {
	r *runner
}

type StatusCommand struct {
	r *runner
}

type RequestCommand struct {
	Query  []string `short:"q" long:"query" description:"query parameter k=v (repeatable)"`
	Header []string `short:"H" long:"header" description:"header \"Name: value\" (repeatable)"`
	Data   string   `short:"d" long:"data" description:"JSON request body"`

	Args struct {
		Method string `positional-arg-name:"METHOD"`
		Path   string `positional-arg-name:"PATH"`
	} `positional-args:"yes" required:"yes"`

	r *runner
}

type GetCommand struct {
	Query []string `short:"q" long:"query" description:"query parameter k=v (repeatable)"`

	Args struct {
		Path string `positional-arg-name:"PATH"`
	} `positional-args:"yes" required:"yes"`

	r *runner
}

type ListCommand struct {
	Query []string `short:"q" long:"query" description:"filter k=v (repeatable)"`

	Args struct {
		Resource string `positional-arg-name:"RESOURCE"`
	} `positional-args:"yes" required:"yes"`

	r *runner
}
