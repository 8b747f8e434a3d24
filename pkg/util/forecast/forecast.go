package forecast

/**
* Forecast is a golang library for turning sparse football data into
* probability distributions:
* - predicts single match outcomes from team identities
* - simulates knockout brackets with Monte Carlo trials
* - synthesizes plausible head-to-head and form records when no real data exists
* - tracks predictions against results
 */
