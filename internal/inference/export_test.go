package inference

var ParseRetryAfter = parseRetryAfter
