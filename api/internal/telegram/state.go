package telegram

const (
	maxReplyBytes      = 3900
	defaultMaxDownload = 20 << 20
)
