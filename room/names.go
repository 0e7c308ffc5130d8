package room

// Lobby is the room of every player currently browsing for a match.
const Lobby = "lobby"

// UserRoom addresses every connection of one account.
func UserRoom(userID string) string { return "user:" + userID }

// EntityRoom holds the state-sync subscribers of one pet.
func EntityRoom(entityID string) string { return "pet:" + entityID }

// BattleRoom holds the two participants of one battle.
func BattleRoom(battleID string) string { return "battle:" + battleID }
