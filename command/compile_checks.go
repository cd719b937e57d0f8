package command

import gocmd "github.com/goliatone/go-command"

var _ gocmd.Commander[IngestWebhookMessage] = (*IngestWebhookCommand)(nil)
