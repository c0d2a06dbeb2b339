package ircslack

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/slack-go/slack"
)

const maxHTTPAttempts = 3

// FileHandler downloads attachments from Slack and uploads local files to
// it. It also stores oversized preformatted blocks in the downloads
// directory so only a reference line reaches the IRC client.
type FileHandler struct {
	SlackAPIKey          string
	FileDownloadLocation string
	ProxyPrefix          string
	HTTPClient           *http.Client
}

func retryableNetError(err error) bool {
	if err == nil {
		return false
	}
	switch err := err.(type) {
	case net.Error:
		if err.Timeout() {
			return true
		}
	}
	return false
}

func retryableHTTPError(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode == 500 || resp.StatusCode == 502 {
		return true
	}
	return false
}

// Download downloads url contents to a local file and returns a url to either
// the file on slack's server or a downloaded file.
func (handler *FileHandler) Download(file slack.File) string {
	fileURL := file.URLPrivate
	if handler.FileDownloadLocation == "" || file.IsExternal || handler.SlackAPIKey == "" {
		return fileURL
	}
	localFileName := fmt.Sprintf("%s_%s", file.ID, file.Title)
	if !strings.HasSuffix(localFileName, file.Filetype) {
		localFileName += "." + file.Filetype
	}
	localFilePath := filepath.Join(handler.FileDownloadLocation, localFileName)
	go func() {
		out, err := os.Create(localFilePath)
		if err != nil {
			log.Warningf("Could not create file for download %s: %v", localFilePath, err)
			return
		}
		defer out.Close()

		request, _ := http.NewRequest("GET", fileURL, nil)
		request.Header.Add("Authorization", "Bearer "+handler.SlackAPIKey)
		client := handler.HTTPClient
		if client == nil {
			client = &http.Client{}
		}
		b := &backoff.Backoff{
			Min:    time.Second,
			Max:    10 * time.Second,
			Jitter: true,
		}
		var resp *http.Response
		for attempt := 0; attempt < maxHTTPAttempts; attempt++ {
			resp, err = client.Do(request)
			if err != nil && retryableNetError(err) || retryableHTTPError(resp) {
				time.Sleep(b.Duration())
				continue
			}
			if err == nil {
				break
			}
			log.Warningf("Error downloading %s: %v", fileURL, err)
			return
		}
		if resp == nil || resp.StatusCode != http.StatusOK {
			log.Debugf("Download of %s did not succeed", fileURL)
			return
		}
		defer resp.Body.Close()
		if _, err := io.Copy(out, resp.Body); err != nil {
			log.Warningf("Error writing %s: %v", fileURL, err)
		}
	}()
	if handler.ProxyPrefix != "" {
		return handler.ProxyPrefix + url.PathEscape(localFileName)
	}
	return fileURL
}

// Upload sends a local file to the given conversation, optionally into a
// thread. It blocks until Slack acknowledges the upload, so callers that
// must not stall run it in a goroutine.
func (handler *FileHandler) Upload(client *slack.Client, channelID, threadTs, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %v", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat %s: %v", path, err)
	}
	params := slack.UploadFileV2Parameters{
		File:            path,
		Filename:        filepath.Base(path),
		FileSize:        int(info.Size()),
		Channel:         channelID,
		ThreadTimestamp: threadTs,
	}
	summary, err := client.UploadFileV2(params)
	if err != nil {
		return fmt.Errorf("upload of %s failed: %v", path, err)
	}
	log.Infof("Uploaded %s as file %s", path, summary.ID)
	return nil
}

// SaveOverflow stores an oversized preformatted block in the downloads
// directory and returns its path. With no downloads directory configured
// a temp file is used.
func (handler *FileHandler) SaveOverflow(text string) (string, error) {
	dir := handler.FileDownloadLocation
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "pre-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", err
	}
	if handler.ProxyPrefix != "" {
		return handler.ProxyPrefix + url.PathEscape(filepath.Base(f.Name())), nil
	}
	return f.Name(), nil
}
