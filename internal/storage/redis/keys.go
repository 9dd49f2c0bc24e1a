package redis

import "fmt"

const keyPrefix = "lounge:"

func deviceKey(id string) string  { return fmt.Sprintf("%sdevice:%s", keyPrefix, id) }
func productKey(id string) string { return fmt.Sprintf("%sproduct:%s", keyPrefix, id) }
func sessionKey(id string) string { return fmt.Sprintf("%ssession:%s", keyPrefix, id) }

func activityKey(id string) string { return fmt.Sprintf("%sactivity:%s", keyPrefix, id) }
func pauseKey(id string) string    { return fmt.Sprintf("%spause:%s", keyPrefix, id) }
func modeKey(id string) string     { return fmt.Sprintf("%smode:%s", keyPrefix, id) }
func orderKey(id string) string    { return fmt.Sprintf("%sorder:%s", keyPrefix, id) }
func lockKey(key string) string    { return fmt.Sprintf("%slock:%s", keyPrefix, key) }

const (
	devicesSetKey        = keyPrefix + "devices"
	productsSetKey       = keyPrefix + "products"
	sessionsSetKey       = keyPrefix + "sessions"
	scheduledActivityKey = keyPrefix + "activities:scheduled"
)

func sessionStatusKey(status string) string {
	return fmt.Sprintf("%ssessions:status:%s", keyPrefix, status)
}

func sessionActivitiesKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:activities", keyPrefix, sessionID)
}

func sessionOpenActivitiesKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:activities:open", keyPrefix, sessionID)
}

func deviceHoldersKey(deviceID string) string {
	return fmt.Sprintf("%sdevice:%s:activities", keyPrefix, deviceID)
}

func activityPausesKey(activityID string) string {
	return fmt.Sprintf("%sactivity:%s:pauses", keyPrefix, activityID)
}

func activityOpenPausesKey(activityID string) string {
	return fmt.Sprintf("%sactivity:%s:pauses:open", keyPrefix, activityID)
}

func activityModesKey(activityID string) string {
	return fmt.Sprintf("%sactivity:%s:modes", keyPrefix, activityID)
}

func activityOpenModesKey(activityID string) string {
	return fmt.Sprintf("%sactivity:%s:modes:open", keyPrefix, activityID)
}

func activityOrdersKey(activityID string) string {
	return fmt.Sprintf("%sactivity:%s:orders", keyPrefix, activityID)
}
