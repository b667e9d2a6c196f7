package sqlinline

// QDebitCredits decrements only when the balance covers the amount; no row
// returned means insufficient balance.
const QDebitCredits = `--sql d5f28d91-2118-44dc-a0d0-63a29adc2822
update credit_accounts
set balance = balance - $2::bigint, updated_at = now()
where owner_id = $1::text and balance >= $2::bigint
returning balance;
`

const QRefundCredits = `--sql 0052c937-ab8a-4ad8-8cca-64f0bbcfe985
insert into credit_accounts (owner_id, balance, created_at, updated_at)
values ($1::text, $2::bigint, now(), now())
on conflict (owner_id) do update set
    balance = credit_accounts.balance + excluded.balance,
    updated_at = now()
returning balance;
`

const QGrantCredits = `--sql a0fc0d2a-951b-4dbb-81d3-5d2603b09796
insert into credit_accounts (owner_id, balance, created_at, updated_at)
values ($1::text, $2::bigint, now(), now())
on conflict (owner_id) do update set
    balance = credit_accounts.balance + excluded.balance,
    updated_at = now()
returning balance;
`

const QSelectCreditBalance = `--sql bbb034f7-bd4d-4a06-90a8-13fc84f31fcc
select balance
from credit_accounts
where owner_id = $1::text
limit 1;
`

const QInsertCreditEntry = `--sql bd5fe5b7-b31e-45b6-8cda-83ea5716eb3f
insert into credit_entries (id, owner_id, job_id, entry_type, amount, balance_after, created_at)
values (gen_random_uuid(), $1::text, nullif($2::text, '')::uuid, $3::text, $4::bigint, $5::bigint, now());
`

const QListCreditEntries = `--sql ceafc81b-74dd-4bb8-b112-c59a2df8963a
select id::text, owner_id, coalesce(job_id::text, ''), entry_type, amount, balance_after, created_at
from credit_entries
where owner_id = $1::text
order by created_at desc
limit $2::int;
`
