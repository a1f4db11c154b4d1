package logger

import "go.uber.org/zap"

// ログで共通に使うフィールド
func EventID(id string) zap.Field   { return zap.String("event_id", id) }
func BookingID(id string) zap.Field { return zap.String("booking_id", id) }
func TableID(id string) zap.Field   { return zap.String("table_id", id) }
func Requester(r string) zap.Field  { return zap.String("requester", r) }
func Count(n int) zap.Field         { return zap.Int("count", n) }
