// autotoken logs into a Slack workspace with a browser and extracts the
// token and session cookie that localslackirc needs. The credentials can
// be printed in the "token|cookie" form accepted as IRC server password,
// or written to the files that localslackirc's --tokenfile and
// --cookiefile flags read.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	flagDebug          = pflag.BoolP("debug", "d", false, "Enable debug log")
	flagShowBrowser    = pflag.BoolP("show-browser", "b", false, "show browser, useful for debugging")
	flagChromePath     = pflag.StringP("chrome-path", "c", "", "Custom path for chrome browser")
	flagMFA            = pflag.StringP("mfa", "m", "", "Provide a multi-factor authentication token (necessary if MFA is enabled on your account)")
	flagWaitGDPRNotice = pflag.BoolP("gdpr", "g", false, "Wait for Slack's GDPR notice pop-up before inserting username and password. Use this to work around login failures")
	flagTimeout        = pflag.UintP("timeout", "T", 30, "Timeout in seconds")
	flagTokenFile      = pflag.StringP("tokenfile", "t", "", "Write the token to this file, for localslackirc --tokenfile")
	flagCookieFile     = pflag.StringP("cookiefile", "k", "", "Write the cookie to this file, for localslackirc --cookiefile")
)

func main() {
	usage := func() {
		fmt.Fprintf(os.Stderr, "autotoken: log into a Slack workspace and extract the token and cookie for localslackirc.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [-d] [-m <token>] [-g] [-t tokenfile -k cookiefile] teamname[.slack.com] email [password]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Without -t/-k the credentials are printed as \"token|cookie\", usable as IRC server password.\n\n")
		pflag.PrintDefaults()
		os.Exit(1)
	}
	pflag.Usage = usage
	pflag.Parse()
	if len(pflag.Args()) < 2 {
		usage()
	}
	team := pflag.Arg(0)
	email := pflag.Arg(1)
	var password string
	if len(pflag.Args()) < 3 {
		fmt.Fprintf(os.Stderr, "Enter your Slack password for user %s on team %s: ", email, team)
		pbytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			log.Fatalf("Failed to read password: %v", err)
		}
		fmt.Println()
		password = string(pbytes)
	} else {
		password = pflag.Arg(2)
	}

	timeout := time.Duration(*flagTimeout) * time.Second
	token, cookie, err := fetchCredentials(context.TODO(), team, email, password, timeout)
	if err != nil {
		log.Fatalf("Failed to fetch credentials for team `%s`: %v", team, err)
	}

	if *flagTokenFile == "" && *flagCookieFile == "" {
		fmt.Printf("%s|%s\n", token, cookie)
		return
	}
	if err := writeSecret(*flagTokenFile, token); err != nil {
		log.Fatalf("Failed to write token file: %v", err)
	}
	if err := writeSecret(*flagCookieFile, cookie); err != nil {
		log.Fatalf("Failed to write cookie file: %v", err)
	}
}

// writeSecret stores one credential in a file only its owner can read.
func writeSecret(path, value string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

// fetchCredentials drives a headless browser through the Slack login of
// the given team and returns the extracted token and cookie.
func fetchCredentials(ctx context.Context, team, email, password string, timeout time.Duration) (string, string, error) {
	if !strings.HasSuffix(team, ".slack.com") {
		team += ".slack.com"
	}
	teamURL := "https://" + team

	var cancel func()
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	var allocatorOpts []chromedp.ExecAllocatorOption
	if *flagShowBrowser {
		allocatorOpts = append(allocatorOpts, chromedp.NoFirstRun, chromedp.NoDefaultBrowserCheck)
	}
	if *flagChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(*flagChromePath))
	}
	ctx, cancel = chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancel()

	var opts []chromedp.ContextOption
	if *flagDebug {
		opts = append(opts, chromedp.WithDebugf(log.Printf))
	}

	ctx, cancel = chromedp.NewContext(ctx, opts...)
	defer cancel()

	fmt.Fprintf(os.Stderr, "Fetching token and cookie for %s on %s\n", email, team)
	return login(ctx, teamURL, email, password)
}

// login authenticates through the Slack login form and returns token and
// cookie, or an error.
func login(ctx context.Context, urlstr, email, password string) (string, string, error) {
	selEmail, selPassword := `//input[@id="email"]`, `//input[@id="password"]`
	tasks := chromedp.Tasks{
		chromedp.Navigate(urlstr),
	}
	if *flagWaitGDPRNotice {
		tasks = append(tasks,
			chromedp.WaitVisible(`//*[@id="onetrust-pc-btn-handler"]`),
			// give it some time to load the JS and finish the graphical transition
			chromedp.Sleep(2*time.Second),
			chromedp.Click(`//*[@id="onetrust-pc-btn-handler"]`),
			chromedp.WaitVisible(`//*[@class="save-preference-btn-handler onetrust-close-btn-handler"]`),
			chromedp.Sleep(2*time.Second),
			chromedp.Click(`//*[@class="save-preference-btn-handler onetrust-close-btn-handler"]`),
		)
	}
	tasks = append(tasks,
		chromedp.WaitVisible(selEmail),
		chromedp.SendKeys(selEmail, email),
		chromedp.WaitVisible(selPassword),
		chromedp.SendKeys(selPassword, password),
		chromedp.Submit(selPassword),
	)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", "", fmt.Errorf("failed to send credentials: %w", err)
	}
	if *flagMFA != "" {
		log.Printf("Sending MFA code")
		selMFA := `//input[@class="auth_code"]`
		mfaTasks := chromedp.Tasks{
			chromedp.WaitVisible(".auth_code"),
			chromedp.SendKeys(selMFA, *flagMFA),
			chromedp.Submit(selMFA),
		}
		if err := chromedp.Run(ctx, mfaTasks); err != nil {
			return "", "", fmt.Errorf("failed to send MFA code: %w", err)
		}
	}

	return extractTokenAndCookie(ctx)
}

// extractTokenAndCookie pulls the workspace token out of the logged-in
// page's local storage and the "d" session cookie out of the browser.
func extractTokenAndCookie(ctx context.Context) (string, string, error) {
	var token, cookie string
	tasks := chromedp.Tasks{
		chromedp.WaitVisible(".p-workspace__primary_view_contents"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			v, exp, err := runtime.Evaluate(`q=JSON.parse(localStorage.localConfig_v2)["teams"]; q[Object.keys(q)[0]]["token"]`).Do(ctx)
			if err != nil {
				return err
			}
			if exp != nil {
				return exp
			}
			if err := json.Unmarshal(v.Value, &token); err != nil {
				return fmt.Errorf("failed to unmarshal token: %v", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				if c.Name == "d" {
					cookie = fmt.Sprintf("d=%s;", c.Value)
				}
			}
			return nil
		}),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", "", err
	}
	return token, cookie, nil
}
