package config

// DefaultText is the configuration printed by "aptfit gen-config".
// Parsing it gives Default().
const DefaultText = `# aptfit configuration

model {
    # Kelvin; kelvin() and the variables ideal_room_celsius and
    # celsius_to_kelvin are available in expressions.
    reference_temperature = kelvin(ideal_room_celsius)
    confidence_level      = 0.95
    # evaluation points of the confidence and prediction bands
    band_samples          = 100
    max_iterations        = 400
    # ftol = 1.4901161193847656e-08
    # xtol = 1.4901161193847656e-08
    # gtol = 1.4901161193847656e-08
}

batch {
    # concurrent fits, 0 uses every CPU
    workers     = 0
    # sample window [trim_start, trim_end), trim_end 0 is the last sample
    trim_start  = 0
    trim_end    = 0
    delimiter   = ","
    # time_layout = "2006-01-02 15:04:05"
    time_zone   = "UTC"
}

report {
    # box, json, yaml or csv
    format         = "box"
    style          = "default"
    precision      = 6
    horizon_months = 0
    horizon_days   = 0
    horizon_hours  = 0
    # SQLite file that keeps every fit run, see "aptfit history"
    # database     = "aptfit.db"
}

log {
    # "-" is stderr, "" discards
    filename        = "-"
    level           = upper(envOrDefault("APTFIT_LOG_LEVEL", "info"))
    append          = true
    rotate_schedule = "@midnight"
    max_size        = 10
    max_backups     = 1
    max_age         = 7
    prefix_width    = 12

    # override "batch" {
    #     level = "DEBUG"
    # }
}
`
