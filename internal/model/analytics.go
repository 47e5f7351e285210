package model

// DashboardStats はダッシュボード用の集計値を表す。
type DashboardStats struct {
	TotalSlots       int     `json:"totalSlots"`
	OccupiedSlots    int     `json:"occupiedSlots"`
	FreeSlots        int     `json:"freeSlots"`
	OccupancyRate    float64 `json:"occupancyRate"`
	TodayRevenue     float64 `json:"todayRevenue"`
	UnpaidViolations int     `json:"unpaidViolations"`
	TotalVehicles    int     `json:"totalVehicles"`
}

// OccupancyPoint は占有率推移の1点を表す。値は合成データ。
type OccupancyPoint struct {
	Time     string `json:"time"`
	Occupied int    `json:"occupied"`
	Total    int    `json:"total"`
}

// PeakPrediction は1日分のピーク予測を表す。
type PeakPrediction struct {
	Date               string  `json:"date"`
	PredictedPeakTime  string  `json:"predictedPeakTime"`
	PredictedOccupancy int     `json:"predictedOccupancy"`
	Confidence         float64 `json:"confidence"`
}

// RevenueSummary は期間内の売上集計を表す。
type RevenueSummary struct {
	Total            float64 `json:"total"`
	Parking          float64 `json:"parking"`
	Violations       float64 `json:"violations"`
	TransactionCount int     `json:"transactionCount"`
}
