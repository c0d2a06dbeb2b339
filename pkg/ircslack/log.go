package ircslack

import (
	"github.com/coredhcp/coredhcp/logger"
)

var log = logger.GetLogger("ircslack")

// MaxSlackAPIAttempts is how many times a rate-limited Slack API call is
// retried before giving up.
const MaxSlackAPIAttempts = 3
