package model

type UserMetrics struct {
	TotalLists      int `json:"totalLists"`
	TotalHouseholds int `json:"totalHouseholds"`
	TotalItems      int `json:"totalItems"`
}

type HouseholdMetrics struct {
	TotalMembers int `json:"totalMembers"`
	TotalLists   int `json:"totalLists"`
	TotalItems   int `json:"totalItems"`
}
