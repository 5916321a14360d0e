package postgres

const (
	setOwner       = `SELECT set_config('app.owner_id', $1, true)`
	setMaintenance = `SELECT set_config('app.role', 'maintenance', true)`

	insertCategory = `
INSERT INTO categories (owner, name, icon, type)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner, name, type) DO NOTHING
RETURNING created_at`

	getCategory = `
SELECT name, icon, type, created_at FROM categories
WHERE owner = $1 AND name = $2 AND type = $3`

	listCategories = `
SELECT name, icon, type, created_at FROM categories
WHERE owner = $1 AND ($2::text = '' OR type = $2::text)
ORDER BY name, type`

	deleteCategory = `
DELETE FROM categories
WHERE owner = $1 AND name = $2 AND type = $3
RETURNING name, icon, type, created_at`

	categoryExists = `
SELECT EXISTS (SELECT 1 FROM categories WHERE owner = $1 AND name = $2 AND type = $3)`

	transactionByIdempotencyKey = `
SELECT id FROM transactions WHERE owner = $1 AND idempotency_key = $2`

	insertTransaction = `
INSERT INTO transactions (
    id, owner, amount_cents, description, occurred_at, year, month, day,
    type, category, category_icon, idempotency_key
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))`

	transactionColumns = `
id, owner, amount_cents, description, occurred_at, type, category, category_icon, created_at, updated_at`

	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND owner = $2`

	lockTransaction = getTransaction + ` FOR UPDATE`

	listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE owner = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at DESC, created_at DESC`

	deleteTransaction = `DELETE FROM transactions WHERE id = $1 AND owner = $2`

	upsertDayHistory = `
INSERT INTO day_history AS h (owner, year, month, day, income, expense)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (owner, year, month, day) DO UPDATE SET
    income = h.income + excluded.income,
    expense = h.expense + excluded.expense
WHERE h.income <= 9223372036854775807 - excluded.income
  AND h.expense <= 9223372036854775807 - excluded.expense`

	upsertMonthHistory = `
INSERT INTO month_history AS h (owner, year, month, income, expense)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (owner, year, month) DO UPDATE SET
    income = h.income + excluded.income,
    expense = h.expense + excluded.expense
WHERE h.income <= 9223372036854775807 - excluded.income
  AND h.expense <= 9223372036854775807 - excluded.expense`

	subtractDayHistory = `
UPDATE day_history SET income = income - $1, expense = expense - $2
WHERE owner = $3 AND year = $4 AND month = $5 AND day = $6
  AND income >= $1 AND expense >= $2`

	subtractMonthHistory = `
UPDATE month_history SET income = income - $1, expense = expense - $2
WHERE owner = $3 AND year = $4 AND month = $5
  AND income >= $1 AND expense >= $2`

	balance = `
SELECT
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'income'), 0)::bigint,
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'expense'), 0)::bigint
FROM transactions
WHERE owner = $1 AND occurred_at >= $2 AND occurred_at < $3`

	categoryTotals = `
SELECT type, category, category_icon, SUM(amount_cents)::bigint AS total
FROM transactions
WHERE owner = $1 AND occurred_at >= $2 AND occurred_at < $3
GROUP BY type, category, category_icon
ORDER BY total DESC, type, category, category_icon`

	dayHistory = `
SELECT day, income, expense FROM day_history
WHERE owner = $1 AND year = $2 AND month = $3
ORDER BY day`

	monthHistory = `
SELECT month, income, expense FROM month_history
WHERE owner = $1 AND year = $2
ORDER BY month`

	historyYears = `
SELECT DISTINCT year FROM month_history WHERE owner = $1 ORDER BY year`

	storedDayTotals = `
SELECT income, expense FROM day_history
WHERE owner = $1 AND year = $2 AND month = $3 AND day = $4`

	storedMonthTotals = `
SELECT income, expense FROM month_history
WHERE owner = $1 AND year = $2 AND month = $3`

	liveTotals = `
SELECT
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'income'), 0)::bigint,
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'expense'), 0)::bigint
FROM transactions
WHERE owner = $1 AND year = $2 AND month = $3 AND ($4::int = 0 OR day = $4::int)`

	owners = `
SELECT owner FROM categories
UNION SELECT owner FROM transactions
UNION SELECT owner FROM day_history
UNION SELECT owner FROM month_history
UNION SELECT owner FROM user_settings
ORDER BY owner`

	activeDays = `
SELECT year, month, day FROM transactions WHERE owner = $1
UNION SELECT year, month, day FROM day_history WHERE owner = $1
ORDER BY 1, 2, 3`

	activeMonths = `
SELECT year, month FROM transactions WHERE owner = $1
UNION SELECT year, month FROM day_history WHERE owner = $1
UNION SELECT year, month FROM month_history WHERE owner = $1
ORDER BY 1, 2`

	clearDayHistory   = `DELETE FROM day_history WHERE owner = $1`
	clearMonthHistory = `DELETE FROM month_history WHERE owner = $1`

	rebuildDayHistory = `
INSERT INTO day_history (owner, year, month, day, income, expense)
SELECT owner, year, month, day,
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'income'), 0),
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'expense'), 0)
FROM transactions WHERE owner = $1
GROUP BY owner, year, month, day`

	rebuildMonthHistory = `
INSERT INTO month_history (owner, year, month, income, expense)
SELECT owner, year, month,
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'income'), 0),
    COALESCE(SUM(amount_cents) FILTER (WHERE type = 'expense'), 0)
FROM transactions WHERE owner = $1
GROUP BY owner, year, month`

	getSettings = `
SELECT currency, created_at, updated_at FROM user_settings WHERE owner = $1`

	insertDefaultSettings = `
INSERT INTO user_settings (owner, currency)
VALUES ($1, $2)
ON CONFLICT (owner) DO NOTHING`

	upsertSettings = `
INSERT INTO user_settings (owner, currency)
VALUES ($1, $2)
ON CONFLICT (owner) DO UPDATE SET
    currency = excluded.currency,
    updated_at = now()`
)
