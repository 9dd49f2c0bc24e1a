package redis

import "github.com/redis/go-redis/v9"

const (
	// upsertSessionScript atomically writes a session and moves it between status sets
	upsertSessionScript = `
local session_key = KEYS[1]   -- lounge:session:{id}
local all_set = KEYS[2]       -- lounge:sessions
local status_set = KEYS[3]    -- lounge:sessions:status:{status}
local other_a = KEYS[4]       -- the two remaining status sets
local other_b = KEYS[5]

local id = ARGV[1]

redis.call('HSET', session_key, unpack(ARGV, 2))
redis.call('SADD', all_set, id)
redis.call('SADD', status_set, id)
redis.call('SREM', other_a, id)
redis.call('SREM', other_b, id)

return 'OK'
`

	// upsertActivityScript atomically writes an activity and maintains its indexes
	upsertActivityScript = `
local activity_key = KEYS[1]  -- lounge:activity:{id}
local session_set = KEYS[2]   -- lounge:session:{sessionID}:activities
local open_set = KEYS[3]      -- lounge:session:{sessionID}:activities:open
local device_set = KEYS[4]    -- lounge:device:{deviceID}:activities
local scheduled = KEYS[5]     -- lounge:activities:scheduled

local id = ARGV[1]
local device_id = ARGV[2]
local status = ARGV[3]
local ended_at = ARGV[4]
local ended_score = ARGV[5]

redis.call('HSET', activity_key, unpack(ARGV, 6))
redis.call('SADD', session_set, id)

if status ~= 'ended' then
  redis.call('SADD', open_set, id)
  if device_id ~= '' then
    redis.call('SADD', device_set, id)
  end
else
  redis.call('SREM', open_set, id)
  if device_id ~= '' then
    redis.call('SREM', device_set, id)
  end
end

-- Only active activities with a planned end are candidates for the expiry sweep
if status == 'active' and ended_at ~= '' then
  redis.call('ZADD', scheduled, ended_score, id)
else
  redis.call('ZREM', scheduled, id)
end

return 'OK'
`

	// upsertIntervalScript writes a pause or mode period and tracks whether it is open
	upsertIntervalScript = `
local record_key = KEYS[1]    -- lounge:pause:{id} or lounge:mode:{id}
local ordered = KEYS[2]       -- lounge:activity:{activityID}:pauses|modes
local open_set = KEYS[3]      -- lounge:activity:{activityID}:pauses|modes:open

local id = ARGV[1]
local start_score = ARGV[2]
local is_open = ARGV[3]

redis.call('HSET', record_key, unpack(ARGV, 4))
redis.call('ZADD', ordered, start_score, id)

if is_open == '1' then
  redis.call('SADD', open_set, id)
else
  redis.call('SREM', open_set, id)
end

return 'OK'
`

	// setFieldsIfExistsScript updates fields of an existing hash, returning 0 when it is missing
	setFieldsIfExistsScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`

	// deleteOrderScript removes an order and its activity index entry
	deleteOrderScript = `
local order_key = KEYS[1]     -- lounge:order:{id}
local orders_set = KEYS[2]    -- lounge:activity:{activityID}:orders

if redis.call('EXISTS', order_key) == 0 then
  return 0
end
redis.call('DEL', order_key)
redis.call('SREM', orders_set, ARGV[1])
return 1
`

	// releaseLockScript deletes a lock only if the caller still owns it
	releaseLockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`
)

var (
	upsertSession     = redis.NewScript(upsertSessionScript)
	upsertActivity    = redis.NewScript(upsertActivityScript)
	upsertInterval    = redis.NewScript(upsertIntervalScript)
	setFieldsIfExists = redis.NewScript(setFieldsIfExistsScript)
	deleteOrder       = redis.NewScript(deleteOrderScript)
	releaseLock       = redis.NewScript(releaseLockScript)
)
