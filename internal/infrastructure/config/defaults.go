package config

// SetDefaults fills in every value left zero after unmarshalling: traffic
// buffer peak/off-peak multipliers, the unrouted-distance reducer
// threshold, and the rest of the profile's scalar tunables.
func SetDefaults(cfg *Config) {
	p := &cfg.Profile

	if p.DefaultZoneCapacity == 0 {
		p.DefaultZoneCapacity = 6
	}
	if p.MaxDuration == 0 {
		p.MaxDuration = 7200
	}
	if p.DirectionPenaltyWeightSolve == 0 {
		p.DirectionPenaltyWeightSolve = 2.0
	}
	if p.DirectionPenaltyWeightReopt == 0 {
		p.DirectionPenaltyWeightReopt = 0.5
	}
	if p.MaxSwapDistanceKm == 0 {
		p.MaxSwapDistanceKm = 1.5
	}
	if p.SwapDurationRegressionCap == 0 {
		p.SwapDurationRegressionCap = 0.25
	}
	if p.ImpossibleDistanceThresholdKm == 0 {
		p.ImpossibleDistanceThresholdKm = 50
	}
	if p.ForceSingletonDistanceKm == 0 {
		p.ForceSingletonDistanceKm = 40
	}
	if p.UnroutedMaxGroupDistanceKm == 0 {
		p.UnroutedMaxGroupDistanceKm = 5
	}
	if p.UnroutedMaxConsecutiveDistanceKm == 0 {
		p.UnroutedMaxConsecutiveDistanceKm = 5
	}
	if p.UnroutedMaxGroupSpanKm == 0 {
		p.UnroutedMaxGroupSpanKm = 12
	}
	if p.MaxUnroutedProcessingAttempts == 0 {
		p.MaxUnroutedProcessingAttempts = 3
	}
	if p.MaxTrimAttemptsPerGroup == 0 {
		p.MaxTrimAttemptsPerGroup = 3
	}

	t := &p.Tunables
	if t.ProgressWeight == 0 {
		t.ProgressWeight = 1.0
	}
	if t.PenaltyScalar == 0 {
		t.PenaltyScalar = 0.5
	}
	if t.DistanceWeight == 0 {
		t.DistanceWeight = 1.0
	}
	if t.DistanceScalar == 0 {
		t.DistanceScalar = 1.0
	}
	if t.PickupAcceptanceFactor == 0 {
		t.PickupAcceptanceFactor = 2.5
	}
	if t.DropoffAcceptanceFactor == 0 {
		t.DropoffAcceptanceFactor = 0.95
	}
	if t.GroupSizeReducerThresholdKm == 0 {
		t.GroupSizeReducerThresholdKm = 15
	}
	if t.TrafficBufferPeakAM == 0 {
		t.TrafficBufferPeakAM = 0.60
	}
	if t.TrafficBufferMidday == 0 {
		t.TrafficBufferMidday = 0.40
	}
	if t.TrafficBufferPeakPM == 0 {
		t.TrafficBufferPeakPM = 0.60
	}
	if t.TrafficBufferOffPeak == 0 {
		t.TrafficBufferOffPeak = 0.40
	}
	if t.TrafficBufferETACap == 0 {
		t.TrafficBufferETACap = 0.40
	}
	if t.LegDurationBufferCap == 0 {
		t.LegDurationBufferCap = 0.40
	}

	if cfg.RoadService.MaxRetries == 0 {
		cfg.RoadService.MaxRetries = 3
	}
	if cfg.RoadService.BackoffBase == "" {
		cfg.RoadService.BackoffBase = "500ms"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
