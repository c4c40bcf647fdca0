package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 上传媒体允许的 MIME 前缀
const (
	MimeVideo = "video/"
	MimeImage = "image/"
)

var AllowedMediaTypes = []string{MimeImage, MimeVideo}

// 实时通道消息类型
const (
	EventSendMessage = "SEND_MESSAGE"
	EventNewMessage  = "NEW_MESSAGE"
	EventMessageAck  = "MESSAGE_ACK"
	EventUserStatus  = "USER_STATUS"
	EventError       = "ERROR"
	EventPing        = "PING"
	EventPong        = "PONG"
)
