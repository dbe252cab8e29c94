package outbox

const workoutCompletedSchema = `{
  "type": "object",
  "title": "WorkoutCompleted",
  "properties": {
    "workout_id": {"type": "string"},
    "user_id": {"type": "string"},
    "performed_at": {"type": "string", "format": "date-time"},
    "xp_gained": {"type": "integer", "minimum": 0},
    "xp": {"type": "integer", "minimum": 0},
    "streak": {"type": "integer", "minimum": 0},
    "streak_transition": {"type": "string", "enum": ["reset", "continue", "hold"]},
    "level_up": {"type": "boolean"},
    "new_level": {"type": "integer", "minimum": 1},
    "personal_records": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "user_id", "performed_at", "xp_gained", "xp", "streak", "streak_transition", "level_up", "new_level", "personal_records", "occurred_at"],
  "additionalProperties": false
}`

const xpAwardedSchema = `{
  "type": "object",
  "title": "XPAwarded",
  "properties": {
    "entry_id": {"type": "string"},
    "user_id": {"type": "string"},
    "amount": {"type": "integer"},
    "reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "amount", "reason", "occurred_at"],
  "additionalProperties": false
}`

const hypeToggledSchema = `{
  "type": "object",
  "title": "HypeToggled",
  "properties": {
    "workout_id": {"type": "string"},
    "giver_id": {"type": "string"},
    "receiver_id": {"type": "string"},
    "hyped": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "giver_id", "receiver_id", "hyped", "occurred_at"],
  "additionalProperties": false
}`
